// server.go 图表数据的HTTP出口
// 只负责把聚合好的表形数据交给外部渲染方，本身不渲染任何图表
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-gota/gota/dataframe"

	"CostIntelligence/src/config"
	"CostIntelligence/src/datasource/file"
	"CostIntelligence/src/processor"
	"CostIntelligence/src/storage"
	"CostIntelligence/src/utils"
)

// Reporter 报告出口：把当前指标汇总与工作子集推送出去（钉钉/邮件）
type Reporter interface {
	SendReport(summary processor.Summary, subset dataframe.DataFrame) error
}

type Server struct {
	cache    *processor.MasterCache
	dcfg     *config.DataConfig
	logger   *storage.Logger
	reporter Reporter
}

func New(cache *processor.MasterCache, dcfg *config.DataConfig, logger *storage.Logger, reporter Reporter) *Server {
	return &Server{
		cache:    cache,
		dcfg:     dcfg,
		logger:   logger,
		reporter: reporter,
	}
}

// Routes 组装路由
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/filters", s.GetFilters)
		r.Get("/kpis", s.GetKPIs)
		r.Route("/charts", func(r chi.Router) {
			r.Get("/cost-breakdown", s.GetCostBreakdown)
			r.Get("/product-cost", s.GetProductCost)
			r.Get("/segment-efficiency", s.GetSegmentEfficiency)
			r.Get("/cost-rating", s.GetCostRating)
			r.Get("/routes/{routeType}", s.GetTopRoutes)
		})
		r.Get("/data", s.GetData)
		r.Post("/report", s.PostReport)
	})

	r.Get("/api/export", s.Export)
	r.Get("/logs", s.StreamLogs)
	return r
}

// ErrorResponse 统一的错误负载
type ErrorResponse struct {
	Error string `json:"error"`
}

// renderLoadError 区分数据源缺失与结构错误，转成对应状态码
// 管道内部不抛异常，错误都在这里变成一条用户可见的提示
func (s *Server) renderLoadError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, file.ErrSourceMissing) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("数据装载失败: " + err.Error())
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

// workingSubset 取主记录集并应用请求里的筛选条件
func (s *Server) workingSubset(r *http.Request) (dataframe.DataFrame, error) {
	master, err := s.cache.Get()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	opt, err := parseFilterOptions(r)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return processor.ApplyFilter(master, opt), nil
}

var errBadParams = errors.New("筛选参数不合法")

// parseFilterOptions 解析查询参数
// 参数缺席表示该维度全选；显式传空表示空选（结果为空集）
func parseFilterOptions(r *http.Request) (processor.FilterOptions, error) {
	q := r.URL.Query()
	opt := processor.FilterOptions{}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opt, fmt.Errorf("%w: from=%q", errBadParams, v)
		}
		opt.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opt, fmt.Errorf("%w: to=%q", errBadParams, v)
		}
		opt.To = t
	}

	opt.Segments = parseSet(q, "segments")
	opt.RouteTypes = parseSet(q, "route_types")
	opt.Products = parseSet(q, "products")
	return opt, nil
}

func parseSet(q map[string][]string, key string) []string {
	vals, present := q[key]
	if !present {
		return nil
	}
	set := []string{}
	for _, raw := range vals {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				set = append(set, v)
			}
		}
	}
	return set
}

func (s *Server) renderSubsetError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadParams) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}
	s.renderLoadError(w, r, err)
}

// GetFilters 筛选控件的可选值与日期上下界
func (s *Server) GetFilters(w http.ResponseWriter, r *http.Request) {
	master, err := s.cache.Get()
	if err != nil {
		s.renderLoadError(w, r, err)
		return
	}
	render.JSON(w, r, processor.Bounds(master))
}

// GetKPIs 核心指标
func (s *Server) GetKPIs(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.Summarize(subset))
}

func (s *Server) GetCostBreakdown(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.CostBreakdown(subset, s.dcfg.CostComponents))
}

func (s *Server) GetProductCost(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.CostByProduct(subset))
}

func (s *Server) GetSegmentEfficiency(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.EfficiencyBySegment(subset))
}

func (s *Server) GetCostRating(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.CostRatingScatter(subset))
}

// GetTopRoutes 国内/国际线路各自的15条最贵线路
func (s *Server) GetTopRoutes(w http.ResponseWriter, r *http.Request) {
	routeType := normalizeRouteType(chi.URLParam(r, "routeType"))
	if routeType == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "routeType 只能是 Domestic 或 International"})
		return
	}

	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}
	render.JSON(w, r, processor.TopRoutesByCostPerKM(subset, routeType))
}

func normalizeRouteType(v string) string {
	switch strings.ToLower(v) {
	case "domestic":
		return processor.RouteTypeDomestic
	case "international":
		return processor.RouteTypeIntl
	}
	return ""
}

// TableResponse 原始数据浏览的负载
type TableResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	HasData bool       `json:"has_data"`
}

// GetData 原始数据浏览：当前工作子集的全部列
func (s *Server) GetData(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}

	records := subset.Records()
	resp := TableResponse{Columns: records[0], HasData: subset.Nrow() > 0}
	if len(records) > 1 {
		resp.Rows = records[1:]
	}
	render.JSON(w, r, resp)
}

// Export 工作子集导出为xlsx下载
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="working_subset.xlsx"`)
	if err := utils.WriteExcel(subset, w); err != nil {
		s.logger.Error("导出xlsx失败: " + err.Error())
	}
}

// PostReport 把当前筛选下的指标汇总推送出去
func (s *Server) PostReport(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		render.Status(r, http.StatusNotImplemented)
		render.JSON(w, r, ErrorResponse{Error: "报告推送未配置"})
		return
	}

	subset, err := s.workingSubset(r)
	if err != nil {
		s.renderSubsetError(w, r, err)
		return
	}

	if err := s.reporter.SendReport(processor.Summarize(subset), subset); err != nil {
		s.logger.Error("报告推送失败: " + err.Error())
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "sent"})
}

// StreamLogs 实时日志输出，按行推送给订阅的客户端
func (s *Server) StreamLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	for {
		select {
		case msg := <-logChan:
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
