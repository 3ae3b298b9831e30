package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

const (
	maxLimit        = 100
	recentDrawCount = 5
)

// drawView is the wire form of a draw: calendar date string, null blue balls
// for types without them.
type drawView struct {
	Issue             string   `json:"issue"`
	DrawDate          string   `json:"draw_date"`
	RedBalls          []string `json:"red_balls"`
	BlueBalls         *string  `json:"blue_balls"`
	Sales             string   `json:"sales"`
	PoolMoney         string   `json:"pool_money"`
	FirstPrizeCount   int      `json:"first_prize_count"`
	FirstPrizeAmount  string   `json:"first_prize_amount"`
	SecondPrizeCount  int      `json:"second_prize_count"`
	SecondPrizeAmount string   `json:"second_prize_amount"`
}

type recentView struct {
	Issue     string   `json:"issue"`
	RedBalls  []string `json:"red_balls"`
	BlueBalls *string  `json:"blue_balls"`
}

type statsView struct {
	Red    []lottery.BallCount `json:"red_ball_frequency"`
	Blue   []lottery.BallCount `json:"blue_ball_frequency"`
	Recent []recentView        `json:"recent_results"`
}

func blueOrNil(blue string) *string {
	if blue == "" {
		return nil
	}
	return &blue
}

func redOrEmpty(red []string) []string {
	if red == nil {
		return []string{}
	}
	return red
}

func toDrawView(d lottery.DrawResult) drawView {
	return drawView{
		Issue:             d.Issue,
		DrawDate:          d.DrawDate.Format(lottery.DateLayout),
		RedBalls:          redOrEmpty(d.RedBalls),
		BlueBalls:         blueOrNil(d.BlueBalls),
		Sales:             d.Sales,
		PoolMoney:         d.PoolMoney,
		FirstPrizeCount:   d.FirstPrizeCount,
		FirstPrizeAmount:  d.FirstPrizeAmount,
		SecondPrizeCount:  d.SecondPrizeCount,
		SecondPrizeAmount: d.SecondPrizeAmount,
	}
}

func toDrawViews(results []lottery.DrawResult) []drawView {
	out := make([]drawView, 0, len(results))
	for _, d := range results {
		out = append(out, toDrawView(d))
	}
	return out
}

// resolveType maps the {code} URL param to a type id, writing the error
// response itself when it cannot.
func (s *Server) resolveType(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := s.store.LookupTypeID(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, lottery.ErrUnknownType) {
		writeError(w, http.StatusBadRequest, "Invalid lottery type")
		return 0, false
	}
	if err != nil {
		s.internalError(w, "lookup lottery type", err)
		return 0, false
	}
	return id, true
}

func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.ListTypes(r.Context())
	if err != nil {
		s.internalError(w, "list lottery types", err)
		return
	}
	if types == nil {
		types = []lottery.Type{}
	}
	writeJSON(w, http.StatusOK, listEnvelope(types, len(types)))
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	typeID, ok := s.resolveType(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 10, 1, maxLimit)
	results, err := s.store.LatestResults(r.Context(), typeID, limit)
	if err != nil {
		s.internalError(w, "load latest results", err)
		return
	}
	views := toDrawViews(results)
	writeJSON(w, http.StatusOK, listEnvelope(views, len(views)))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	typeID, ok := s.resolveType(w, r)
	if !ok {
		return
	}
	page := queryInt(r, "page", 1, 1, 0)
	limit := queryInt(r, "limit", 20, 1, maxLimit)
	results, err := s.store.ResultHistory(r.Context(), typeID, (page-1)*limit, limit)
	if err != nil {
		s.internalError(w, "load result history", err)
		return
	}
	total, err := s.store.CountResults(r.Context(), typeID)
	if err != nil {
		s.internalError(w, "count results", err)
		return
	}
	views := toDrawViews(results)
	env := listEnvelope(views, len(views))
	env.Total = &total
	env.Page = page
	env.Limit = limit
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	typeID, ok := s.resolveType(w, r)
	if !ok {
		return
	}
	freq, err := s.store.BallFrequency(r.Context(), typeID)
	if err != nil {
		s.internalError(w, "compute ball frequency", err)
		return
	}
	recent, err := s.store.LatestResults(r.Context(), typeID, recentDrawCount)
	if err != nil {
		s.internalError(w, "load recent results", err)
		return
	}
	view := statsView{
		Red:    freq.Red,
		Blue:   freq.Blue,
		Recent: make([]recentView, 0, len(recent)),
	}
	if view.Red == nil {
		view.Red = []lottery.BallCount{}
	}
	if view.Blue == nil {
		view.Blue = []lottery.BallCount{}
	}
	for _, d := range recent {
		view.Recent = append(view.Recent, recentView{
			Issue:     d.Issue,
			RedBalls:  redOrEmpty(d.RedBalls),
			BlueBalls: blueOrNil(d.BlueBalls),
		})
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: view})
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request) {
	typeID, ok := s.resolveType(w, r)
	if !ok {
		return
	}
	result, err := s.store.ResultByIssue(r.Context(), typeID, chi.URLParam(r, "issue"))
	if errors.Is(err, lottery.ErrNotFound) {
		writeError(w, http.StatusNotFound, "draw not found")
		return
	}
	if err != nil {
		s.internalError(w, "load draw", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toDrawView(result)})
}
