// Package ws pushes per-user events to connected websocket clients.
//
// Delivery is at-most-once: an event for a user with no open socket, or
// with a socket that cannot keep up, is dropped. Clients reconcile by pull
// after reconnecting. With Redis attached, events fan out through pub/sub
// so a user connected to any instance receives them.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "kiwiblue:user:"
	presencePrefix = "kiwiblue:online:"

	// Presence is a sorted set per user holding one member per instance
	// with a socket open, scored by the last pong. A member older than this
	// no longer counts, which covers instances that died without cleaning up.
	presenceTTL = 2 * pongWait

	redisTimeout = 2 * time.Second
)

// Event is the JSON frame the app receives.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type delivery struct {
	userID  uint
	payload []byte
}

// Hub tracks every local client by user and routes events to them.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
	closeOnce  sync.Once

	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}

	rdb *redis.Client

	// instance names this hub in presence sets.
	instance string
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		clients:    make(map[uint]map[*Client]struct{}),
		instance:   uuid.NewString(),
	}
}

// Relay routes pushes through Redis. It returns once the subscription is
// confirmed, so events published afterwards are not missed.
func (h *Hub) Relay(ctx context.Context, rdb *redis.Client) error {
	sub := rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	h.rdb = rdb

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-h.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				id, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, channelPrefix), 10, 64)
				if err != nil {
					log.Printf("ws relay: bad channel %q", msg.Channel)
					continue
				}
				h.enqueue(delivery{userID: uint(id), payload: []byte(msg.Payload)})
			}
		}
	}()
	return nil
}

// Run owns client registration and fan-out until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			h.touch(c.userID)

		case c := <-h.unregister:
			if h.remove(c) {
				h.forget(c.userID)
			}

		case d := <-h.deliver:
			h.mu.RLock()
			var slow []*Client
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				log.Printf("ws: dropping slow client %s for user %d", c.id, c.userID)
				if h.remove(c) {
					h.forget(c.userID)
				}
			}

		case <-h.done:
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uint]map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Close stops Run and disconnects every local client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Push sends ev to every socket userID has open, on any instance when
// Redis is attached. It never blocks the caller.
func (h *Hub) Push(userID uint, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", ev.Type, err)
		return
	}
	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		err := h.rdb.Publish(ctx, channelPrefix+strconv.FormatUint(uint64(userID), 10), payload).Err()
		cancel()
		if err == nil {
			return
		}
		log.Printf("ws: redis publish failed, delivering locally: %v", err)
	}
	h.enqueue(delivery{userID: userID, payload: payload})
}

// Online reports whether userID has a socket open here or, with Redis,
// refreshed presence recently from another instance.
func (h *Hub) Online(ctx context.Context, userID uint) bool {
	h.mu.RLock()
	n := len(h.clients[userID])
	h.mu.RUnlock()
	if n > 0 || h.rdb == nil {
		return n > 0
	}
	cutoff := strconv.FormatInt(time.Now().Add(-presenceTTL).Unix(), 10)
	live, err := h.rdb.ZCount(ctx, presenceKey(userID), "("+cutoff, "+inf").Result()
	if err != nil {
		return false
	}
	return live > 0
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	default:
		log.Printf("ws: delivery queue full, dropping event for user %d", d.userID)
	}
}

// remove drops c and closes its send channel. It reports whether c was the
// user's last local client.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

func (h *Hub) touch(userID uint) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	key := presenceKey(userID)
	_, err := h.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(time.Now().Unix()), Member: h.instance})
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	if err != nil {
		log.Printf("ws: presence refresh for user %d: %v", userID, err)
	}
}

// forget clears this instance's presence for userID. Sockets the user holds
// on other instances keep their own members.
func (h *Hub) forget(userID uint) {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := h.rdb.ZRem(ctx, presenceKey(userID), h.instance).Err(); err != nil {
		log.Printf("ws: presence clear for user %d: %v", userID, err)
	}
}

func presenceKey(userID uint) string {
	return presencePrefix + strconv.FormatUint(uint64(userID), 10)
}
