package gameserver

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/mileusna/useragent"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

var (
	ErrAlreadyConnected = errors.New("client already connected")
	ErrUnknownClient    = errors.New("unknown client")
	ErrRateLimited      = errors.New("too many requests")
)

// Describes a connected client.
type Client struct {
	ID        game.ControllerID
	Host      string
	Agent     useragent.UserAgent
	Connected time.Time
	Outbox    *replication.Outbox

	// Filled in once the server has joined the client to the match.
	Team   game.TeamID
	Entity game.EntityID

	limiter *rate.Limiter
	limited int
}

func (c *Client) String() string {
	return fmt.Sprintf("%d (%s)", c.ID, c.Host)
}

// Device describes the client's browser or platform for logging.
func (c *Client) Device() string {
	if c.Agent.Name == "" {
		return "unknown"
	}
	if c.Agent.OS == "" {
		return c.Agent.Name
	}
	return fmt.Sprintf("%s on %s", c.Agent.Name, c.Agent.OS)
}

type ClientManager struct {
	mutex   deadlock.RWMutex
	clients map[game.ControllerID]*Client
	rate    rate.Limit
	burst   int
}

func NewClientManager(perSecond float64, burst int) *ClientManager {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &ClientManager{
		clients: make(map[game.ControllerID]*Client),
		rate:    limit,
		burst:   burst,
	}
}

func (cm *ClientManager) Add(id game.ControllerID, host, agent string) (*Client, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, ok := cm.clients[id]; ok {
		return nil, ErrAlreadyConnected
	}

	client := &Client{
		ID:        id,
		Host:      host,
		Agent:     useragent.Parse(agent),
		Connected: time.Now(),
		limiter:   rate.NewLimiter(cm.rate, cm.burst),
	}
	cm.clients[id] = client
	return client, nil
}

func (cm *ClientManager) Remove(id game.ControllerID) (*Client, bool) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	client, ok := cm.clients[id]
	if ok {
		delete(cm.clients, id)
	}
	return client, ok
}

func (cm *ClientManager) Get(id game.ControllerID) (*Client, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	client, ok := cm.clients[id]
	return client, ok
}

// Allow reports whether the client may submit another request right now.
func (cm *ClientManager) Allow(id game.ControllerID) (*Client, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	client, ok := cm.clients[id]
	if !ok {
		return nil, ErrUnknownClient
	}
	if !client.limiter.Allow() {
		client.limited++
		return client, ErrRateLimited
	}
	return client, nil
}

func (cm *ClientManager) Limited(id game.ControllerID) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if client, ok := cm.clients[id]; ok {
		return client.limited
	}
	return 0
}

func (cm *ClientManager) Len() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.clients)
}

// IDs lists connected clients in ascending order.
func (cm *ClientManager) IDs() []game.ControllerID {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	ids := make([]game.ControllerID, 0, len(cm.clients))
	for id := range cm.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
