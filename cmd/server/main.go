package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/in/rest"
	memory_adapter "github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/notify"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/security"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-desk/internal/config"
	"github.com/JoeShih716/go-balance-desk/pkg/logger"
	"github.com/JoeShih716/go-balance-desk/pkg/mysql"
	"github.com/JoeShih716/go-balance-desk/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 帳戶儲存
	directory, closeStorage, err := openDirectory(ctx, cfg, l)
	if err != nil {
		l.Fatal("Failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeStorage()

	// 3. 通知
	sinks := []notify.Sink{notify.NewLogSink(l)}
	var publisher *notify.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, l)
		sinks = append(sinks, publisher)
		l.Info("Kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.SMTP.Host != "" {
		sinks = append(sinks, notify.NewMailer(notify.MailerConfig{
			Host:         cfg.SMTP.Host,
			Port:         cfg.SMTP.Port,
			Username:     cfg.SMTP.Username,
			Password:     cfg.SMTP.Password,
			From:         cfg.SMTP.From,
			AdminAddress: cfg.SMTP.AdminAddress,
			ImplicitTLS:  cfg.SMTP.ImplicitTLS,
		}))
		l.Info("SMTP mailer enabled", zap.String("host", cfg.SMTP.Host))
	}
	dispatcher := notify.NewDispatcher(l, cfg.Notify.QueueSize, cfg.Notify.Timeout, sinks...)
	dispatcher.Start(context.Background())

	// 4. UseCase
	tokens, err := security.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		l.Fatal("Failed to init token issuer", zap.Error(err))
	}
	balance := usecase.NewBalanceUseCase(directory, dispatcher, l)
	auth := usecase.NewAuthUseCase(directory, security.NewBcryptHasher(cfg.Auth.BcryptCost), tokens, dispatcher, l)

	// 5. HTTP
	routerOpts := rest.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AdminKey:       cfg.Auth.AdminKey,
		LoginLimit:     cfg.Redis.LoginLimit,
		LoginWindow:    cfg.Redis.LoginWindow,
	}
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// 限流本身 fail open，Redis 暫時不通不阻擋啟動
			l.Warn("Redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		routerOpts.LoginCounter = rest.NewRedisCounter(rdb)
	}
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: rest.NewRouter(rest.NewHandler(balance, auth, l), routerOpts, l),
	}

	// 6. gRPC
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		l.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}
	grpcServer := grpc_adapter.NewServer(balance, l, cfg.Auth.AdminKey)

	errCh := make(chan error, 2)
	go func() {
		l.Info("Starting HTTP server", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		l.Info("Starting gRPC server", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("Shutting down server...")
	case err := <-errCh:
		l.Error("Server failed", zap.Error(err))
	}

	// Graceful Shutdown: 先停止收請求，再清空通知佇列，最後關閉儲存
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	dispatcher.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			l.Error("Kafka close failed", zap.Error(err))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	l.Info("Server exited")
}

// openDirectory 依設定建立帳戶儲存
//
// 回傳:
//
//	usecase.AccountDirectory: 帳戶儲存
//	func(): 關閉底層資源 (WAL 檔或 DB 連線)
//	error: 初始化失敗
func openDirectory(ctx context.Context, cfg config.Config, l *zap.Logger) (usecase.AccountDirectory, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL, l)
		if err != nil {
			return nil, nil, err
		}
		directory := mysql_adapter.NewDirectory(dbClient)
		if err := directory.Migrate(ctx); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		l.Info("Connected to MySQL successfully", zap.String("db", cfg.MySQL.DBName))
		return directory, func() {
			if err := dbClient.Close(); err != nil {
				l.Error("MySQL close failed", zap.Error(err))
			}
		}, nil
	default:
		walFile, err := wal.NewWAL(cfg.Storage.WALPath)
		if err != nil {
			return nil, nil, err
		}
		directory, err := memory_adapter.NewDirectory(walFile)
		if err != nil {
			walFile.Close()
			return nil, nil, err
		}
		l.Info("Memory storage recovered from WAL", zap.String("path", cfg.Storage.WALPath))
		return directory, func() {
			if err := walFile.Close(); err != nil {
				l.Error("WAL close failed", zap.Error(err))
			}
		}, nil
	}
}
