// Package feed builds the ordered deck of cards a viewer swipes through.
// Composing a deck only reads; it can be re-run at any time.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
)

// ErrViewerNotFound is returned for unknown or deactivated viewers.
var ErrViewerNotFound = errors.New("viewer not found")

type Composer struct {
	store *store.Store
}

func NewComposer(st *store.Store) *Composer {
	return &Composer{store: st}
}

// Compose returns the viewer's deck. Seekers see every open job, newest
// first. Posters see available seeker profiles they have not unlocked yet,
// with seekers who showed interest in one of the poster's jobs at the front.
func (c *Composer) Compose(ctx context.Context, viewerID uint) ([]models.Listing, error) {
	viewer, err := c.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	var listings []models.Listing
	switch viewer.Role {
	case models.RoleSeeker:
		listings, err = c.jobs(ctx)
	case models.RolePoster:
		listings, err = c.profiles(ctx, viewer.ID)
	default:
		return nil, ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("compose feed: %w", err)
	}
	return dedupe(listings), nil
}

func (c *Composer) jobs(ctx context.Context) ([]models.Listing, error) {
	var jobs []models.Listing
	err := c.store.DB().WithContext(ctx).
		Where("kind = ? AND status = ?", models.KindJob, models.StatusOpen).
		Order("created_at DESC").Order("id DESC").
		Find(&jobs).Error
	return jobs, err
}

func (c *Composer) profiles(ctx context.Context, posterID uint) ([]models.Listing, error) {
	var profiles []models.Listing
	err := c.store.DB().WithContext(ctx).
		Where("kind = ? AND status <> ? AND owner_id <> ?", models.KindProfile, models.StatusUnavailable, posterID).
		Where("owner_id IN (SELECT id FROM accounts WHERE active = ?)", true).
		Where("NOT EXISTS (SELECT 1 FROM unlocks WHERE unlocks.poster_id = ? AND unlocks.seeker_id = listings.owner_id)", posterID).
		Order(interestFirst(posterID)).
		Order("updated_at DESC").Order("id DESC").
		Find(&profiles).Error
	return profiles, err
}

// Contact is one entry of a poster's unlocked list.
type Contact struct {
	Seeker     models.Account  `json:"seeker"`
	Profile    *models.Listing `json:"profile,omitempty"`
	Cost       int64           `json:"cost"`
	UnlockedAt time.Time       `json:"unlockedAt"`
}

// Unlocked lists the seekers a poster has unlocked, newest unlock first.
// This is where a seeker goes once they leave the poster's deck.
func (c *Composer) Unlocked(ctx context.Context, posterID uint) ([]Contact, error) {
	viewer, err := c.viewer(ctx, posterID)
	if err != nil {
		return nil, err
	}
	if viewer.Role != models.RolePoster {
		return []Contact{}, nil
	}

	db := c.store.DB().WithContext(ctx)
	var unlocks []models.Unlock
	if err := db.Where("poster_id = ?", posterID).
		Order("created_at DESC").Order("id DESC").
		Find(&unlocks).Error; err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	if len(unlocks) == 0 {
		return []Contact{}, nil
	}

	seekerIDs := make([]uint, 0, len(unlocks))
	listingIDs := make([]uint, 0, len(unlocks))
	for _, u := range unlocks {
		seekerIDs = append(seekerIDs, u.SeekerID)
		listingIDs = append(listingIDs, u.ListingID)
	}

	var seekers []models.Account
	if err := db.Where("id IN ?", seekerIDs).Find(&seekers).Error; err != nil {
		return nil, fmt.Errorf("load unlocked seekers: %w", err)
	}
	var profiles []models.Listing
	if err := db.Where("id IN ?", listingIDs).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load unlocked profiles: %w", err)
	}

	byID := make(map[uint]models.Account, len(seekers))
	for _, s := range seekers {
		byID[s.ID] = s
	}
	profileByID := make(map[uint]*models.Listing, len(profiles))
	for i := range profiles {
		profileByID[profiles[i].ID] = &profiles[i]
	}

	contacts := make([]Contact, 0, len(unlocks))
	for _, u := range unlocks {
		seeker, ok := byID[u.SeekerID]
		if !ok {
			continue
		}
		contacts = append(contacts, Contact{
			Seeker:     seeker,
			Profile:    profileByID[u.ListingID],
			Cost:       u.Cost,
			UnlockedAt: u.CreatedAt,
		})
	}
	return contacts, nil
}

func (c *Composer) viewer(ctx context.Context, id uint) (*models.Account, error) {
	acct, err := c.store.PeekAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	if !acct.Active {
		return nil, ErrViewerNotFound
	}
	return acct, nil
}
