package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"mycareerbox/internal/config"
	"mycareerbox/internal/model"
	awsClient "mycareerbox/internal/platform/aws"
	mysqlClient "mycareerbox/internal/platform/mysql"
	rabbitmqClient "mycareerbox/internal/platform/rabbitmq"
	redisClient "mycareerbox/internal/platform/redis"
	"mycareerbox/internal/repository"
	"mycareerbox/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	AWS         *awsClient.Clients
	EventWorker *worker.RecordEventWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	app := &App{Config: cfg, StartedAt: time.Now()}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.RecordEvent{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.RecordEventQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	clients, err := awsClient.Load(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	a.AWS = clients

	eventRepo := repository.NewRecordEventRepository(mysqlDB)
	eventWorker := worker.NewRecordEventWorker(mqConn, eventRepo, cfg.RabbitMQ.RecordEventQueue)
	if err := eventWorker.Start(ctx); err != nil {
		return fmt.Errorf("start record event worker failed: %w", err)
	}
	a.EventWorker = eventWorker
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
