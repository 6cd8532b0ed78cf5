// payment-saga 支付事务编排服务入口.
//
// 从配置文件装配全部组件：Saga 存储、模板注册表、调度表、
// 编排器、执行引擎、补偿引擎、事件消费者、卡死步骤巡检
// 和管理 HTTP 端点，然后交由应用生命周期管理运行.
package main

import (
	"flag"

	"github.com/Tsukikage7/payment-saga/api"
	"github.com/Tsukikage7/payment-saga/app"
	"github.com/Tsukikage7/payment-saga/compensator"
	"github.com/Tsukikage7/payment-saga/config"
	"github.com/Tsukikage7/payment-saga/consumer"
	"github.com/Tsukikage7/payment-saga/database"
	"github.com/Tsukikage7/payment-saga/dispatch"
	"github.com/Tsukikage7/payment-saga/events"
	"github.com/Tsukikage7/payment-saga/executor"
	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/messaging"
	"github.com/Tsukikage7/payment-saga/metrics"
	"github.com/Tsukikage7/payment-saga/orchestrator"
	"github.com/Tsukikage7/payment-saga/retry"
	"github.com/Tsukikage7/payment-saga/saga"
	"github.com/Tsukikage7/payment-saga/sweeper"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg := config.MustLoad[config.Config](*configPath,
		config.WithEnvPrefix("PAYMENT_SAGA"),
	)

	if cfg.Logger.ServiceName == "" {
		cfg.Logger.ServiceName = cfg.Service.Name
	}
	log := logger.MustNewLogger(&cfg.Logger)
	defer log.Sync()

	collector := metrics.MustNewMetrics(&cfg.Metrics)

	store, appOpts := buildStore(cfg, log)

	registry := saga.MustNewRegistry(buildTemplates(cfg.Templates)...)
	table := dispatch.MustNewTable(cfg.Dispatch)
	caller := dispatch.NewCaller(
		dispatch.WithCallerLogger(log),
		dispatch.WithBackoff(retry.BackoffByName(cfg.Orchestrator.RetryBackoff)),
	)

	producer, err := messaging.NewProducer(&cfg.Messaging, messaging.WithProducerLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建消息生产者失败")
	}
	appOpts = append(appOpts, app.RegisterCloser("producer", producer, 10))

	publisher := events.NewProducerPublisher(producer,
		events.WithTopics(buildTopics(cfg.Topics)),
		events.WithPublisherLogger(log),
	)

	orch, err := orchestrator.New(store, registry, publisher,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(collector),
		orchestrator.WithConflictRetries(cfg.Orchestrator.ConflictRetries),
		orchestrator.WithRetryBackoff(
			retry.BackoffByName(cfg.Orchestrator.RetryBackoff),
			cfg.Orchestrator.RetryBaseDelay,
		),
	)
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建编排器失败")
	}

	exec, err := executor.NewEngine(store, table, caller, publisher, executor.WithLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建执行引擎失败")
	}
	exec.SetReporter(orch)

	comp, err := compensator.NewEngine(store, table, caller, compensator.WithLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建补偿引擎失败")
	}
	comp.SetCompleter(orch)

	orch.SetExecutor(exec)
	orch.SetCompensator(comp)

	deadLetter, err := consumer.NewDeadLetter(producer, cfg.Consumer.DeadLetterTopic,
		consumer.WithDeadLetterLogger(log),
		consumer.WithDeadLetterMetrics(collector),
	)
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建死信处理器失败")
	}

	trigger, err := consumer.NewTrigger(orch, consumer.Selection{
		HighValueThreshold: cfg.Selection.HighValueThreshold,
		HighValueTemplate:  cfg.Selection.HighValueTemplate,
		FastPathTemplate:   cfg.Selection.FastPathTemplate,
		DefaultTemplate:    cfg.Selection.DefaultTemplate,
	}, deadLetter, consumer.WithTriggerLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建触发消费者失败")
	}

	resolver, err := consumer.NewResolver(orch, store, cfg.Consumer.EventStepTypes, deadLetter,
		consumer.WithResolverLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建响应消费者失败")
	}

	triggerConsumer, err := messaging.NewConsumer(&cfg.Messaging, cfg.Consumer.TriggerGroupID(),
		messaging.WithConsumerLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建触发主题消费者失败")
	}

	resolverConsumer, err := messaging.NewConsumer(&cfg.Messaging, cfg.Consumer.ResolverGroupID(),
		messaging.WithConsumerLogger(log))
	if err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 创建响应主题消费者失败")
	}

	appOpts = append(appOpts,
		app.Name(cfg.Service.Name),
		app.Logger(log),
	)

	application := app.New(appOpts...)
	application.Use(
		app.NewConsumerServer("trigger-consumer", triggerConsumer,
			[]string{cfg.Consumer.TriggerTopic}, trigger.Handle),
		app.NewConsumerServer("resolver-consumer", resolverConsumer,
			cfg.Consumer.ResolverTopics, resolver.Handle),
		app.NewHTTPServer(cfg.Service.HTTPAddr, api.NewHandler(orch, collector, log), log),
	)

	if cfg.Sweeper.Enabled {
		sw, err := sweeper.New(store, table, orch,
			sweeper.WithLogger(log),
			sweeper.WithSpec(cfg.Sweeper.Spec),
			sweeper.WithMultiplier(cfg.Sweeper.Multiplier),
		)
		if err != nil {
			log.With(logger.Err(err)).Fatal("[Main] 创建巡检任务失败")
		}
		application.Use(app.NewSweeperServer(sw))
	}

	if err := application.Run(); err != nil {
		log.With(logger.Err(err)).Fatal("[Main] 应用运行失败")
	}
}

// buildStore 按配置创建 Saga 存储，并返回随应用关闭的清理选项.
func buildStore(cfg *config.Config, log logger.Logger) (saga.Store, []app.Option) {
	switch cfg.Store {
	case "gorm":
		db := database.MustNewDatabase(cfg.Database, log)
		store := saga.NewGormStore(db.GORM())
		if cfg.Database.AutoMigrate {
			if err := store.AutoMigrate(); err != nil {
				log.With(logger.Err(err)).Fatal("[Main] 数据库迁移失败")
			}
		}
		return store, []app.Option{app.RegisterCloser("database", db, 20)}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return saga.NewRedisStore(client), []app.Option{app.RegisterCloser("redis", client, 20)}
	default:
		return saga.NewMemoryStore(), nil
	}
}

// buildTemplates 把配置中的模板定义转换为聚合模板.
func buildTemplates(configs []config.TemplateConfig) []*saga.Template {
	templates := make([]*saga.Template, 0, len(configs))
	for _, tc := range configs {
		templates = append(templates, &saga.Template{
			Name:    tc.Name,
			Version: tc.Version,
			Steps:   tc.Steps,
		})
	}
	return templates
}

// buildTopics 把配置中的主题映射转换为事件主题表.
func buildTopics(topics map[string]string) events.Topics {
	result := events.Topics{}
	for eventType, topic := range topics {
		result[events.EventType(eventType)] = topic
	}
	return result
}
