package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"profiler/internal/config"
	"profiler/internal/output"
	"profiler/internal/profiler"
	"profiler/pkg/models"
)

// Server 剖析控制API服务器
// 一次只允许一个剖析任务在跑，最近一次的汇总保留在内存里供查询
type Server struct {
	config      *config.Config
	outputter   output.Output
	logger      *logrus.Logger
	logManager  *LogManager
	server      *http.Server
	mu          sync.RWMutex
	isRunning   bool
	lastSummary *models.OverallSummary
	lastError   string
	runCancel   context.CancelFunc
	startedAt   time.Time
	port        int
}

// NewServer 创建API服务器
func NewServer(cfg *config.Config, out output.Output, logger *logrus.Logger, port int) *Server {
	// 创建日志管理器
	logManager := NewLogManager(1000) // 最多保存1000条日志

	// 添加日志钩子
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		config:     cfg,
		outputter:  out,
		logger:     logger,
		logManager: logManager,
		port:       port,
	}
}

// Start 启动API服务器
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 添加中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// 设置路由
	s.setupRoutes(router)

	// 创建HTTP服务器
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: router,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	return s.server.ListenAndServe()
}

// Stop 停止API服务器
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning && s.runCancel != nil {
		s.runCancel()
		s.logger.Info("剖析任务已取消")
	}

	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	// 健康检查
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 剖析器状态与结果
		api.GET("/status", s.getStatus)
		api.GET("/summary", s.getSummary)

		// 剖析任务控制
		api.POST("/run", s.startRun)
		api.POST("/stop", s.stopRun)

		// 配置查看
		api.GET("/config", s.getConfig)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		// 节点管理
		api.GET("/nodes", s.getNodes)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "profiler-api",
	})
}

// getStatus 获取剖析器状态
func (s *Server) getStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := gin.H{
		"running": s.isRunning,
		"status":  s.getStatusString(),
	}
	if s.isRunning {
		status["started_at"] = s.startedAt.Format(time.RFC3339)
		status["elapsed"] = time.Since(s.startedAt).String()
	}
	if s.lastError != "" {
		status["last_error"] = s.lastError
	}

	c.JSON(http.StatusOK, status)
}

// getSummary 获取最近一次剖析的汇总
func (s *Server) getSummary(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSummary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "还没有完成的剖析结果"})
		return
	}

	c.JSON(http.StatusOK, s.lastSummary)
}

// startRun 启动剖析任务
func (s *Server) startRun(c *gin.Context) {
	var req struct {
		StartBlock        uint64 `json:"start_block"`
		EndBlock          uint64 `json:"end_block"`
		Workers           int    `json:"workers"`
		ChunkSize         uint64 `json:"chunk_size"`
		TxCap             uint64 `json:"tx_cap"`
		SkipContractCheck bool   `json:"skip_contract_check"`
		TraceMode         string `json:"trace_mode"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.EndBlock < req.StartBlock {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("结束区块 %d 小于起始区块 %d", req.EndBlock, req.StartBlock)})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "剖析任务已在运行"})
		return
	}

	// 请求里的参数覆盖配置文件里的默认值
	runCfg := *s.config.Profiler
	if req.Workers > 0 {
		runCfg.ReceiptWorkers = req.Workers
	}
	if req.ChunkSize > 0 {
		runCfg.ChunkSize = req.ChunkSize
	}
	runCfg.TxCap = req.TxCap
	runCfg.SkipContractCheck = req.SkipContractCheck
	if req.TraceMode != "" {
		runCfg.TraceMode = req.TraceMode
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.lastError = ""
	s.runCancel = runCancel
	s.startedAt = time.Now()

	// 启动剖析任务
	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.runCancel = nil
			s.mu.Unlock()
			runCancel()
		}()

		s.logger.Infof("启动剖析任务: 区块 %d - %d", req.StartBlock, req.EndBlock)

		client, err := profiler.NewEthLedgerClient(runCtx, s.config.Blockchain.Nodes, s.logger)
		if err != nil {
			s.recordFailure(fmt.Sprintf("创建节点客户端失败: %v", err))
			return
		}
		defer client.Close()

		prof, err := profiler.New(client, &runCfg, s.config.Decoder, s.outputter, nil, s.logger)
		if err != nil {
			s.recordFailure(fmt.Sprintf("创建剖析器失败: %v", err))
			return
		}

		summary, err := prof.Run(runCtx, req.StartBlock, req.EndBlock)
		if err != nil {
			s.recordFailure(fmt.Sprintf("剖析任务失败: %v", err))
			return
		}

		s.mu.Lock()
		s.lastSummary = summary
		s.mu.Unlock()
		s.logger.Infof("剖析完成: %d 区块, %d 交易", summary.BlockCount, summary.TotalTx)
	}()

	c.JSON(http.StatusOK, gin.H{
		"message": "剖析任务已启动",
		"status":  "started",
	})
}

// recordFailure 记录任务失败信息
func (s *Server) recordFailure(msg string) {
	s.logger.Error(msg)
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// stopRun 停止剖析任务
func (s *Server) stopRun(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "剖析任务未在运行"})
		return
	}

	if s.runCancel != nil {
		s.runCancel()
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "剖析任务已请求停止",
		"status":  "stopping",
	})
}

// getConfig 获取配置
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": s.config,
	})
}

// getStatusString 获取状态字符串
func (s *Server) getStatusString() string {
	if s.isRunning {
		return "running"
	}
	return "idle"
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")
	pageStr := c.Query("page")
	pageSizeStr := c.Query("pageSize")

	page := 1 // 默认第1页
	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	pageSize := 20 // 默认每页20条
	if pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 {
			pageSize = ps
		}
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}

// getNodes 获取节点配置
func (s *Server) getNodes(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil || s.config.Blockchain == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "区块链配置未加载",
		})
		return
	}

	if len(s.config.Blockchain.Nodes) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"nodes":   []gin.H{},
			"total":   0,
			"message": "未配置任何节点",
		})
		return
	}

	var nodes []gin.H
	for _, node := range s.config.Blockchain.Nodes {
		nodes = append(nodes, gin.H{
			"name":     node.Name,
			"type":     node.Type,
			"url":      node.URL,
			"priority": node.Priority,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"nodes": nodes,
		"total": len(nodes),
	})
}
