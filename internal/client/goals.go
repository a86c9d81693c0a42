package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/isdelr/goals-be/internal/models"
)

// Goals calls the goal endpoints with the controller's session.
type Goals struct {
	api *API
}

// NewGoals creates a Goals bound to c.
func NewGoals(c *Controller) *Goals {
	return &Goals{api: c.api}
}

// List returns the caller's goals. Zero filter fields use the server
// defaults.
func (g *Goals) List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Sort != "" {
		query.Set("sort", filter.Sort)
	}
	path := "/api/goals"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	goals := []models.Goal{}
	if err := g.api.do(ctx, http.MethodGet, path, nil, &goals, false); err != nil {
		return nil, err
	}
	return goals, nil
}

func (g *Goals) Get(ctx context.Context, id string) (models.Goal, error) {
	var goal models.Goal
	err := g.api.do(ctx, http.MethodGet, "/api/goals/"+url.PathEscape(id), nil, &goal, false)
	return goal, err
}

func (g *Goals) Create(ctx context.Context, in models.GoalInput) (models.Goal, error) {
	var goal models.Goal
	err := g.api.do(ctx, http.MethodPost, "/api/goals", in, &goal, false)
	return goal, err
}

func (g *Goals) Update(ctx context.Context, id string, upd models.GoalUpdate) (models.Goal, error) {
	var goal models.Goal
	err := g.api.do(ctx, http.MethodPut, "/api/goals/"+url.PathEscape(id), upd, &goal, false)
	return goal, err
}

func (g *Goals) Delete(ctx context.Context, id string) error {
	return g.api.do(ctx, http.MethodDelete, "/api/goals/"+url.PathEscape(id), nil, nil, false)
}

// RecentGoals is how many goals a Summary lists.
const RecentGoals = 3

// Summary is the dashboard view of a user's goals.
type Summary struct {
	Total      int
	Completed  int
	InProgress int
	Recent     []models.Goal
}

// Summary counts the caller's goals and picks the most recent ones.
func (g *Goals) Summary(ctx context.Context) (Summary, error) {
	goals, err := g.List(ctx, models.GoalFilter{Status: models.StatusAll, Sort: models.SortRecent})
	if err != nil {
		return Summary{}, err
	}
	return summarize(goals), nil
}

// summarize expects goals newest first.
func summarize(goals []models.Goal) Summary {
	s := Summary{Total: len(goals)}
	for _, goal := range goals {
		if goal.Completed {
			s.Completed++
		}
	}
	s.InProgress = s.Total - s.Completed
	s.Recent = goals[:min(len(goals), RecentGoals)]
	return s
}
