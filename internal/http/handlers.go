package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/kiwiblue/internal/chat"
	"github.com/sujalbistaa/kiwiblue/internal/feed"
	"github.com/sujalbistaa/kiwiblue/internal/jobs"
	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/referral"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/swipe"
	"github.com/sujalbistaa/kiwiblue/internal/ws"
)

const maxIdempotencyKey = 128

// --- Structs for request binding ---
type SwipeInput struct {
	ListingID uint   `json:"listingId" binding:"required"`
	Direction string `json:"direction" binding:"required,oneof=left right"`
}
type ReferralInput struct {
	AccountID uint   `json:"accountId" binding:"required"`
	Code      string `json:"code" binding:"required,max=64"`
}
type JobInput struct {
	Title      string   `json:"title"`
	Wage       string   `json:"wage"`
	Location   string   `json:"location"`
	Tags       []string `json:"tags"`
	Experience string   `json:"experience"`
}
type MessageInput struct {
	ReceiverID uint   `json:"receiverId" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// card is a listing as the deck renders it.
type card struct {
	models.Listing
	Experience string `json:"experience"`
}

// --- Handlers ---
type Env struct {
	Feed      *feed.Composer
	Jobs      *jobs.Board
	Swipes    *swipe.Processor
	Referrals *referral.Settlement
	Chat      *chat.Ledger
	Hub       *ws.Hub
}

func (e *Env) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (e *Env) GetFeed(c *gin.Context) {
	listings, err := e.Feed.Compose(c.Request.Context(), callerID(c))
	if errors.Is(err, feed.ErrViewerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	if err != nil {
		log.Printf("Error composing feed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load feed"})
		return
	}
	cards := make([]card, 0, len(listings))
	for i := range listings {
		cards = append(cards, card{Listing: listings[i], Experience: listings[i].Experience()})
	}
	c.JSON(http.StatusOK, cards)
}

func (e *Env) CreateJob(c *gin.Context) {
	var input JobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	job, err := e.Jobs.Post(c.Request.Context(), callerID(c), jobs.Draft{
		Title:      input.Title,
		Wage:       input.Wage,
		Location:   input.Location,
		Tags:       input.Tags,
		Experience: input.Experience,
	})
	switch {
	case errors.Is(err, jobs.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jobs.ErrNotPoster):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only posters can publish jobs"})
		return
	case errors.Is(err, jobs.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	case err != nil:
		log.Printf("Error publishing job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish job"})
		return
	}
	c.JSON(http.StatusCreated, card{Listing: *job, Experience: job.Experience()})
}

func (e *Env) GetUnlocked(c *gin.Context) {
	contacts, err := e.Feed.Unlocked(c.Request.Context(), callerID(c))
	if errors.Is(err, feed.ErrViewerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	if err != nil {
		log.Printf("Error listing unlocked contacts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contacts"})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (e *Env) GetQuota(c *gin.Context) {
	used, limit, err := e.Swipes.Quota(c.Request.Context(), callerID(c))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	if err != nil {
		log.Printf("Error loading quota: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load quota"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"used": used, "limit": limit, "remaining": max(limit-used, 0)})
}

func (e *Env) CreateSwipe(c *gin.Context) {
	var input SwipeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	key := c.GetHeader("Idempotency-Key")
	if len(key) > maxIdempotencyKey {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key is too long"})
		return
	}
	dir, err := swipe.ParseDirection(input.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	out := e.Swipes.Swipe(c.Request.Context(), swipe.Request{
		ViewerID:       callerID(c),
		ListingID:      input.ListingID,
		Direction:      dir,
		IdempotencyKey: key,
	})
	c.JSON(StatusFor(out.Result), out)
}

// StatusFor maps a swipe result to its HTTP status. The body always
// carries the result itself.
func StatusFor(r swipe.Result) int {
	switch r {
	case swipe.Committed, swipe.Skipped:
		return http.StatusOK
	case swipe.QuotaExceeded:
		return http.StatusTooManyRequests
	case swipe.InsufficientFunds:
		return http.StatusPaymentRequired
	case swipe.AlreadyUnlocked:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// ApplyReferral is called by the registration service. The outcome is
// never reported back; registration does not wait on rewards.
func (e *Env) ApplyReferral(c *gin.Context) {
	var input ReferralInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	e.Referrals.Apply(c.Request.Context(), input.AccountID, input.Code)
	c.JSON(http.StatusAccepted, gin.H{"message": "Referral accepted"})
}

func (e *Env) GetReferralStats(c *gin.Context) {
	stats, err := e.Referrals.Stats(c.Request.Context(), callerID(c))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	if err != nil {
		log.Printf("Error loading referral stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load referral stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (e *Env) SendMessage(c *gin.Context) {
	var input MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	msg, err := e.Chat.Send(c.Request.Context(), callerID(c), input.ReceiverID, input.Content)
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, chat.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	case err != nil:
		log.Printf("Error sending message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (e *Env) GetConversations(c *gin.Context) {
	convs, err := e.Chat.Conversations(c.Request.Context(), callerID(c))
	if err != nil {
		log.Printf("Error listing conversations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (e *Env) GetHistory(c *gin.Context) {
	counterpart, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}
	var before uint
	if s := c.Query("before"); s != "" {
		if before, ok = parseID(s); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before cursor"})
			return
		}
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	msgs, err := e.Chat.History(c.Request.Context(), callerID(c), counterpart, before, limit)
	if err != nil {
		log.Printf("Error loading history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (e *Env) OpenConversation(c *gin.Context) {
	counterpart, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}
	ctx := c.Request.Context()
	marked, err := e.Chat.Open(ctx, callerID(c), counterpart)
	if err != nil {
		log.Printf("Error opening conversation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark conversation read"})
		return
	}
	total, err := e.Chat.UnreadTotal(ctx, callerID(c))
	if err != nil {
		log.Printf("Error loading unread total: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load unread total"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked, "unread": total})
}

func (e *Env) GetUnread(c *gin.Context) {
	total, err := e.Chat.UnreadTotal(c.Request.Context(), callerID(c))
	if err != nil {
		log.Printf("Error loading unread total: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load unread total"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": total})
}

func (e *Env) Sync(c *gin.Context) {
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
			return
		}
		since = t
	}
	var after uint
	if s := c.Query("after"); s != "" {
		var ok bool
		if after, ok = parseID(s); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid after cursor"})
			return
		}
	}
	out, err := e.Chat.Reconcile(c.Request.Context(), callerID(c), since, after)
	if err != nil {
		log.Printf("Error reconciling: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) GetPresence(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": e.Hub.Online(c.Request.Context(), id)})
}

// ServeWs attaches a socket. Browsers cannot set headers on the upgrade
// request, so the caller may also come in the userId query parameter.
func (e *Env) ServeWs(c *gin.Context) {
	raw := c.GetHeader(callerHeader)
	if raw == "" {
		raw = c.Query("userId")
	}
	id, ok := parseID(raw)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: X-User-ID header required"})
		return
	}
	ws.ServeWs(e.Hub, id, c.Writer, c.Request)
}
