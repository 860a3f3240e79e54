package modules

import (
	"expvar"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/swordot/portal/internal/metrics"
)

type DebugModule struct {
	Gatherer prometheus.Gatherer
}

func NewDebugModule(g prometheus.Gatherer) *DebugModule { return &DebugModule{Gatherer: g} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	rg.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	if m.Gatherer != nil {
		rg.GET("/debug/metrics", gin.WrapH(metrics.Handler(m.Gatherer)))
	}
}
