package jobs_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/kiwiblue/internal/feed"
	"github.com/sujalbistaa/kiwiblue/internal/jobs"
	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/testutil"
)

func TestPostPublishesIntoSeekerFeed(t *testing.T) {
	database := testutil.NewDB(t)
	st := store.New(database)
	board := jobs.NewBoard(st)
	ctx := context.Background()
	poster := testutil.Poster(t, database)
	seeker := testutil.Seeker(t, database)

	job, err := board.Post(ctx, poster.ID, jobs.Draft{
		Title:      "  North Shore carpenter ",
		Wage:       "35",
		Location:   "Albany",
		Tags:       []string{"long term", " cash ok", "long term", ""},
		Experience: "2 years",
	})
	require.NoError(t, err)
	assert.Equal(t, "North Shore carpenter", job.Title)
	assert.Equal(t, "$35/hr", job.Wage)
	assert.Equal(t, "long term,cash ok", job.Tags)
	assert.Equal(t, models.KindJob, job.Kind)
	assert.Equal(t, models.StatusOpen, job.Status)
	assert.Equal(t, 2, job.ExperienceYears)

	deck, err := feed.NewComposer(st).Compose(ctx, seeker.ID)
	require.NoError(t, err)
	require.Len(t, deck, 1)
	assert.Equal(t, job.ID, deck[0].ID)
}

func TestPostRejects(t *testing.T) {
	database := testutil.NewDB(t)
	board := jobs.NewBoard(store.New(database))
	ctx := context.Background()
	poster := testutil.Poster(t, database)
	seeker := testutil.Seeker(t, database)
	retired := testutil.Poster(t, database, func(a *models.Account) { a.Active = false })

	valid := jobs.Draft{Title: "Painter", Wage: "30", Location: "Albany"}
	cases := []struct {
		name   string
		poster uint
		draft  jobs.Draft
		want   error
	}{
		{"missing title", poster.ID, jobs.Draft{Wage: "30", Location: "Albany"}, jobs.ErrInvalidJob},
		{"blank wage", poster.ID, jobs.Draft{Title: "Painter", Wage: "  ", Location: "Albany"}, jobs.ErrInvalidJob},
		{"missing location", poster.ID, jobs.Draft{Title: "Painter", Wage: "30"}, jobs.ErrInvalidJob},
		{"too many tags", poster.ID, jobs.Draft{Title: "Painter", Wage: "30", Location: "Albany", Tags: []string{"a", "b", "c", "d"}}, jobs.ErrInvalidJob},
		{"comma in tag", poster.ID, jobs.Draft{Title: "Painter", Wage: "30", Location: "Albany", Tags: []string{"a,b"}}, jobs.ErrInvalidJob},
		{"title too long", poster.ID, jobs.Draft{Title: strings.Repeat("x", 256), Wage: "30", Location: "Albany"}, jobs.ErrInvalidJob},
		{"seeker", seeker.ID, valid, jobs.ErrNotPoster},
		{"inactive poster", retired.ID, valid, jobs.ErrNotPoster},
		{"unknown account", 9999, valid, jobs.ErrUnknownAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := board.Post(ctx, tc.poster, tc.draft)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, testutil.Count(t, database, &models.Listing{}, ""))
}

func TestFormatWage(t *testing.T) {
	assert.Equal(t, "$35/hr", jobs.FormatWage("35"))
	assert.Equal(t, "$200/day", jobs.FormatWage("$200/day"))
}
