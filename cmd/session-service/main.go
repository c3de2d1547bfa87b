package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intervue/internal/common/cache"
	"intervue/internal/common/db"
	commonmw "intervue/internal/common/http/middleware"
	"intervue/internal/common/mq"
	"intervue/internal/common/storage"
	judgeController "intervue/internal/judge/controller"
	"intervue/internal/judge/judgeclient"
	judgeRepo "intervue/internal/judge/repository"
	judgeService "intervue/internal/judge/service"
	questionController "intervue/internal/question/controller"
	questionRepo "intervue/internal/question/repository"
	questionService "intervue/internal/question/service"
	reportController "intervue/internal/report/controller"
	"intervue/internal/report/evalclient"
	reportService "intervue/internal/report/service"
	sessionController "intervue/internal/session/controller"
	sessionRepo "intervue/internal/session/repository"
	sessionService "intervue/internal/session/service"
	"intervue/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/session_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var eventPublisher sessionRepo.SessionEventPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		eventPublisher = sessionRepo.NewMQSessionEventPublisher(producer, appCfg.Session.EventTopic)
	}

	questions := questionRepo.NewQuestionRepositoryWithTTL(mysqlDB, redisCache, appCfg.Session.QuestionCacheTTL, appCfg.Session.QuestionEmptyTTL)
	sessions := sessionRepo.NewSessionRepository(mysqlDB)
	submissions := judgeRepo.NewSubmissionRepository(mysqlDB)
	tokenStore := sessionRepo.NewCreationTokenStoreWithTTL(redisCache, appCfg.Session.CreationTokenTTL)

	sessionSvc, err := sessionService.NewSessionService(sessionService.Config{
		SessionRepo:     sessions,
		QuestionRepo:    questions,
		TokenStore:      tokenStore,
		EventPublisher:  eventPublisher,
		SessionDuration: appCfg.Session.Duration,
	})
	if err != nil {
		logger.Error(context.Background(), "init session service failed", zap.Error(err))
		return
	}

	questionSvc, err := questionService.NewQuestionService(questionService.Config{QuestionRepo: questions})
	if err != nil {
		logger.Error(context.Background(), "init question service failed", zap.Error(err))
		return
	}

	judgeClient, err := judgeclient.NewClient(appCfg.Judge.clientConfig())
	if err != nil {
		logger.Error(context.Background(), "init judge client failed", zap.Error(err))
		return
	}
	runSvc, err := judgeService.NewRunService(judgeService.Config{
		Judge:           judgeClient,
		QuestionRepo:    questions,
		SessionRepo:     sessions,
		SubmissionRepo:  submissions,
		PollInterval:    appCfg.Judge.PollInterval,
		MaxPollAttempts: appCfg.Judge.MaxPollAttempts,
	})
	if err != nil {
		logger.Error(context.Background(), "init run service failed", zap.Error(err))
		return
	}

	evaluator, err := evalclient.NewFromAPIKey(appCfg.Evaluation.APIKey, appCfg.Evaluation.Model)
	if err != nil {
		logger.Error(context.Background(), "init evaluation client failed", zap.Error(err))
		return
	}

	var archiver *reportService.Archiver
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		archiver, err = reportService.NewArchiver(objStorage, appCfg.Archive.Bucket)
		if err != nil {
			logger.Error(context.Background(), "init archiver failed", zap.Error(err))
			return
		}
	}

	reportSvc, err := reportService.NewReportService(reportService.Config{
		QuestionRepo:   questions,
		SubmissionRepo: submissions,
		Sessions:       sessionSvc,
		Evaluator:      evaluator,
		Archiver:       archiver,
		Runs:           runSvc,
	})
	if err != nil {
		logger.Error(context.Background(), "init report service failed", zap.Error(err))
		return
	}

	verifier := commonmw.NewTokenVerifier(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)
	httpServer := buildHTTPServer(appCfg.Server, verifier, sessionSvc, questionSvc, runSvc, reportSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "session http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(
	cfg ServerConfig,
	verifier *commonmw.TokenVerifier,
	sessionSvc *sessionService.SessionService,
	questionSvc *questionService.QuestionService,
	runSvc *judgeService.RunService,
	reportSvc *reportService.ReportService,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1")
	api.Use(commonmw.AuthMiddleware(verifier))

	sessionCtl := sessionController.NewSessionController(sessionSvc)
	api.GET("/sessions", sessionCtl.List)
	api.POST("/sessions", sessionCtl.Create)
	api.POST("/sessions/provision", sessionCtl.Provision)
	api.GET("/sessions/:id", sessionCtl.Validate)
	api.GET("/sessions/:id/report", sessionCtl.Get)
	api.POST("/sessions/:id/abandon", sessionCtl.Abandon)
	api.POST("/sessions/abandon", sessionCtl.Abandon)
	api.GET("/credits", sessionCtl.Credits)

	reportCtl := reportController.NewReportController(reportSvc)
	api.POST("/sessions/:id/complete", reportCtl.Complete)

	runCtl := judgeController.NewRunController(runSvc)
	api.POST("/runs", runCtl.Start)
	api.GET("/runs/:id", runCtl.Get)

	questionCtl := questionController.NewQuestionController(questionSvc)
	api.GET("/questions/:uri", questionCtl.Get)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
