// Package jobs lets posters publish job listings into seekers' decks.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
)

// MaxTags is how many perk tags one job may carry.
const MaxTags = 3

const (
	maxTitle    = 255
	maxWage     = 64
	maxLocation = 128
	maxTagList  = 255
)

var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrNotPoster      = errors.New("only posters can publish jobs")
	ErrUnknownAccount = errors.New("account not found")
)

// Draft is a job as the poster submits it.
type Draft struct {
	Title      string
	Wage       string
	Location   string
	Tags       []string
	Experience string // free text such as "3 years"; optional
}

type Board struct {
	store *store.Store
}

func NewBoard(st *store.Store) *Board {
	return &Board{store: st}
}

// Post validates d and publishes it as an open job owned by posterID.
func (b *Board) Post(ctx context.Context, posterID uint, d Draft) (*models.Listing, error) {
	l, err := normalize(d)
	if err != nil {
		return nil, err
	}

	poster, err := b.store.PeekAccount(ctx, posterID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if poster.Role != models.RolePoster || !poster.Active {
		return nil, ErrNotPoster
	}

	l.OwnerID = posterID
	if err := b.store.InsertListing(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func normalize(d Draft) (*models.Listing, error) {
	title := strings.TrimSpace(d.Title)
	wage := strings.TrimSpace(d.Wage)
	location := strings.TrimSpace(d.Location)
	if title == "" || wage == "" || location == "" {
		return nil, fmt.Errorf("%w: title, wage and location are required", ErrInvalidJob)
	}
	wage = FormatWage(wage)
	switch {
	case utf8.RuneCountInString(title) > maxTitle:
		return nil, fmt.Errorf("%w: title is too long", ErrInvalidJob)
	case utf8.RuneCountInString(wage) > maxWage:
		return nil, fmt.Errorf("%w: wage is too long", ErrInvalidJob)
	case utf8.RuneCountInString(location) > maxLocation:
		return nil, fmt.Errorf("%w: location is too long", ErrInvalidJob)
	}

	tags, err := normalizeTags(d.Tags)
	if err != nil {
		return nil, err
	}

	return &models.Listing{
		Kind:            models.KindJob,
		Title:           title,
		Wage:            wage,
		Location:        location,
		Tags:            tags,
		Status:          models.StatusOpen,
		ExperienceYears: models.ParseExperience(d.Experience),
	}, nil
}

// normalizeTags trims, drops blanks and repeats, and joins with commas.
func normalizeTags(raw []string) (string, error) {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(t, ",") {
			return "", fmt.Errorf("%w: tag %q contains a comma", ErrInvalidJob, t)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > MaxTags {
		return "", fmt.Errorf("%w: at most %d tags", ErrInvalidJob, MaxTags)
	}
	joined := strings.Join(tags, ",")
	if utf8.RuneCountInString(joined) > maxTagList {
		return "", fmt.Errorf("%w: tags are too long", ErrInvalidJob)
	}
	return joined, nil
}

// FormatWage turns a bare number like "35" into "$35/hr". Anything already
// carrying a dollar sign is kept as written.
func FormatWage(w string) string {
	if strings.Contains(w, "$") {
		return w
	}
	return "$" + w + "/hr"
}
