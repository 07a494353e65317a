package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voicedoc/internal/bootstrap"
	"voicedoc/internal/vectorstore"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type storeStatus struct {
	dependencyStatus
	Index        string                   `json:"index"`
	Capabilities vectorstore.Capabilities `json:"capabilities"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	mysqlStatus := h.checkMySQL(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()
	docsStatus := checkStore(ctx, h.app.DocsStore)
	chatStatus := checkStore(ctx, h.app.ChatStore)

	allOK := mysqlStatus.OK && redisStatus.OK && rmqStatus.OK && docsStatus.OK && chatStatus.OK
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"store": gin.H{
			"provider": h.app.Config.Store.Provider,
			"docs":     docsStatus,
			"chat":     chatStatus,
		},
		"dependencies": gin.H{
			"mysql":    mysqlStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
		},
	})
}

func (h *HealthHandler) checkMySQL(ctx context.Context) dependencyStatus {
	if h.app.MySQL == nil {
		return dependencyStatus{OK: false, Message: "not connected"}
	}
	sqlDB, err := h.app.MySQL.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.app.Redis == nil {
		return dependencyStatus{OK: true, Message: "disabled"}
	}
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil {
		return dependencyStatus{OK: true, Message: "disabled"}
	}
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}

func checkStore(ctx context.Context, store bootstrap.StoreClient) storeStatus {
	status := storeStatus{
		dependencyStatus: dependencyStatus{OK: true},
		Index:            store.Index,
	}
	if store.Client == nil {
		status.dependencyStatus = dependencyStatus{OK: false, Message: "not configured"}
		return status
	}
	status.Capabilities = vectorstore.Probe(store.Client)
	if p, ok := store.Client.(vectorstore.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			status.dependencyStatus = dependencyStatus{OK: false, Message: err.Error()}
		}
	}
	return status
}
