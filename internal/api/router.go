// Package api exposes the read-only metrics surface: three JSON GET
// endpoints over the aggregate tables.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/metalgrid/sflowcollectd/internal/aggregate"
)

// Handler serves the metrics endpoints from a shared set of tables.
type Handler struct {
	tables *aggregate.Tables
}

// NewHandler builds a Handler reading from tables.
func NewHandler(tables *aggregate.Tables) *Handler {
	return &Handler{tables: tables}
}

// NewRouter builds the gin engine for the metrics surface. Unmatched
// routes fall through to gin's default 404 handler.
func NewRouter(tables *aggregate.Tables) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	h := NewHandler(tables)
	metrics := router.Group("/metrics")
	{
		metrics.GET("/net", h.Net)
		metrics.GET("/agent", h.Agent)
		metrics.GET("/flow", h.Flow)
	}

	return router
}

type counterDTO struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// Net serves GET /metrics/net: {source_ip: {"packets": N, "bytes": N}, …}.
func (h *Handler) Net(c *gin.Context) {
	snap := h.tables.SourceSnapshot()
	out := make(map[string]counterDTO, len(snap))
	for ip, counter := range snap {
		out[ip] = counterDTO{Packets: counter.Packets, Bytes: counter.Bytes}
	}
	c.JSON(http.StatusOK, out)
}

// Agent serves GET /metrics/agent:
// {agent_ip: {sample_kind: {"packets": N, "bytes": N}, …}, …}.
func (h *Handler) Agent(c *gin.Context) {
	snap := h.tables.AgentSnapshot()
	out := make(map[string]map[string]counterDTO, len(snap))
	for agent, byKind := range snap {
		inner := make(map[string]counterDTO, len(byKind))
		for kind, counter := range byKind {
			inner[kind] = counterDTO{Packets: counter.Packets, Bytes: counter.Bytes}
		}
		out[agent] = inner
	}
	c.JSON(http.StatusOK, out)
}

type flowEntryDTO struct {
	SrcMAC   string `json:"src_mac"`
	DstMAC   string `json:"dst_mac"`
	VLAN     uint32 `json:"vlan"`
	Protocol uint32 `json:"protocol"`
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
}

// Flow serves GET /metrics/flow:
// [{"src_mac": "…", "dst_mac": "…", "vlan": N, "protocol": N, "packets": N, "bytes": N}, …].
func (h *Handler) Flow(c *gin.Context) {
	entries := h.tables.FlowSnapshot()
	out := make([]flowEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, flowEntryDTO{
			SrcMAC:   formatMAC(e.Key.SrcMAC),
			DstMAC:   formatMAC(e.Key.DstMAC),
			VLAN:     e.Key.VLAN,
			Protocol: e.Key.Protocol,
			Packets:  e.Counter.Packets,
			Bytes:    e.Counter.Bytes,
		})
	}
	c.JSON(http.StatusOK, out)
}

func formatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
