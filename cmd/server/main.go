package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/catalog"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/gateway"
	"github.com/mbeoliero/sellerchat/internal/handler"
	"github.com/mbeoliero/sellerchat/internal/repository"
	"github.com/mbeoliero/sellerchat/internal/router"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/pkg/constant"
	"github.com/mbeoliero/sellerchat/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, bus_driver=%s", cfg.Server.Mode, cfg.Bus.Driver)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	// Fan-out bus and its publish workers
	msgBus, err := bus.New(cfg.Bus, repos.Redis)
	if err != nil {
		log.CtxError(ctx, "failed to initialize bus: %v", err)
		panic(err)
	}
	dispatcher := bus.NewDispatcher(msgBus, cfg.Bus.PublishWorkers, cfg.Bus.PublishQueueSize)
	dispatcher.Start()

	resolver, err := catalog.New(cfg.Catalog)
	if err != nil {
		log.CtxError(ctx, "failed to initialize catalog resolver: %v", err)
		panic(err)
	}

	// Initialize services
	readState := service.NewReadStateService(repos)
	msgService := service.NewMessageService(repos, readState, cfg.Messaging)
	msgService.SetPublisher(dispatcher)
	convService := service.NewConversationService(repos, resolver, msgService, readState)

	wsServer := gateway.NewWsServer(cfg, repos.Redis, msgBus, msgService, convService, readState)
	wsServer.Run(ctx)

	handlers := &router.Handlers{
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService, readState),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)
	router.SetupRouter(h, cfg, handlers, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	if err := h.Shutdown(ctx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	cancel()

	// Drain queued publications before the bus goes away
	dispatcher.Close()
	if err := msgBus.Close(); err != nil {
		log.CtxWarn(ctx, "bus close error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}
