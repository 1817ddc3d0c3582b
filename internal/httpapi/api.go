package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"github.com/yuqie6/Sanpai/internal/service"
)

// ========== DTOs ==========

type VisitRequestDTO struct {
	SiteID    int64    `json:"site_id"`
	Kind      string   `json:"kind"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type HarvestRequestDTO struct {
	Period string `json:"period"`
	Date   string `json:"date,omitempty"` // YYYY-MM-DD，缺省为当前周期
}

type TitleDTO struct {
	TemplateCode string `json:"template_code"`
	Display      string `json:"display"`
	Grade        int    `json:"grade"`
	PeriodKey    string `json:"period_key"`
	AwardedAt    int64  `json:"awarded_at"`
}

type ActivityDTO struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

func (a *apiServer) registerJSONRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/visits", a.wrapPOST(a.requireReady(a.limitByUser(a.recordVisit))))
	mux.HandleFunc("/api/admin/harvest", a.wrapPOST(a.requireReady(a.requireAdmin(a.triggerHarvest))))

	mux.HandleFunc("/api/leaderboard", a.wrapGET(a.requireReady(a.getLeaderboard)))
	mux.HandleFunc("/api/activity", a.wrapGET(a.requireReady(a.getActivity)))
	mux.HandleFunc("/api/titles", a.wrapGET(a.requireReady(a.getTitles)))
	mux.HandleFunc("/api/users/progress", a.wrapGET(a.requireReady(a.getUserProgress)))
}

func (a *apiServer) wrapGET(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) wrapPOST(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

// requireReady 安全模式下服务未装配，拒绝业务请求
func (a *apiServer) requireReady(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.core.Ready() {
			writeError(w, http.StatusServiceUnavailable, "数据库处于安全模式，暂不提供服务")
			return
		}
		fn(w, r)
	}
}

// requireAdmin 校验 X-Admin-Token；未配置令牌时管理接口整体关闭
func (a *apiServer) requireAdmin(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := a.core.Cfg.Server.AdminToken
		got := r.Header.Get("X-Admin-Token")
		if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) limitByUser(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if key == "" {
			key = r.RemoteAddr
		}
		if !a.limiter.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "请求过于频繁")
			return
		}
		fn(w, r)
	}
}

// callerID 上游认证层写入的 X-User-ID
func callerID(r *http.Request) (int64, bool) {
	id, err := parseInt64Param(r.Header.Get("X-User-ID"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// userParam 优先 query 中的 user_id，其次调用者本人
func userParam(r *http.Request) (int64, bool) {
	if s := strings.TrimSpace(r.URL.Query().Get("user_id")); s != "" {
		id, err := parseInt64Param(s)
		return id, err == nil && id > 0
	}
	return callerID(r)
}

// ========== handlers ==========

func (a *apiServer) recordVisit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "缺少 X-User-ID")
		return
	}
	var req VisitRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := service.RecordRequest{
		UserID: userID,
		SiteID: req.SiteID,
		Kind:   schema.VisitKind(strings.TrimSpace(req.Kind)),
	}
	if req.Latitude != nil && req.Longitude != nil {
		in.Location = &service.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res, err := a.core.Services.Recorder.RecordEvent(ctx, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *apiServer) triggerHarvest(w http.ResponseWriter, r *http.Request) {
	var req HarvestRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := service.ParsePeriodKind(strings.TrimSpace(req.Period))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ref := time.Now()
	if d := strings.TrimSpace(req.Date); d != "" {
		ref, err = repository.ParseDay(d, a.core.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	report, err := a.core.Services.Harvester.Harvest(ctx, kind, ref, service.HarvestOptions{Force: true})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *apiServer) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subjectID, err := parseInt64Param(q.Get("subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "subject_id 无效")
		return
	}
	st := schema.SubjectType(strings.TrimSpace(q.Get("subject_type")))
	if st == "" {
		st = schema.SubjectSite
	}
	window := schema.Window(strings.TrimSpace(q.Get("window")))
	if window == "" {
		window = schema.WindowAll
	}

	rows, err := a.core.Services.Queries.Leaderboard(r.Context(), st, subjectID, window, queryInt(r, "limit", 10))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_type": st,
		"subject_id":   subjectID,
		"window":       window,
		"entries":      rows,
	})
}

func (a *apiServer) getActivity(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if s := strings.TrimSpace(r.URL.Query().Get("user_id")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "user_id 无效")
			return
		}
		userID = id
	}
	logs, err := a.core.Services.Queries.Activity(r.Context(), userID, queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]ActivityDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, ActivityDTO{
			ID:        l.ID,
			UserID:    l.UserID,
			Kind:      l.Kind,
			Message:   l.Message,
			Meta:      l.Meta,
			CreatedAt: l.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) getTitles(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id 无效")
		return
	}
	grants, err := a.core.Services.Queries.Titles(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]TitleDTO, 0, len(grants))
	for _, g := range grants {
		out = append(out, TitleDTO{
			TemplateCode: g.TemplateCode,
			Display:      g.Display,
			Grade:        g.Grade,
			PeriodKey:    g.PeriodKey,
			AwardedAt:    g.AwardedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) getUserProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id 无效")
		return
	}
	p, err := a.core.Services.Queries.Progress(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
