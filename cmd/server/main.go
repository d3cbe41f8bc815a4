package main

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/alarm"
	"github.com/Wafik13/PFE-sub001/internal/cache"
	"github.com/Wafik13/PFE-sub001/internal/cloud"
	"github.com/Wafik13/PFE-sub001/internal/config"
	"github.com/Wafik13/PFE-sub001/internal/database"
	"github.com/Wafik13/PFE-sub001/internal/domain"
	httpHandlers "github.com/Wafik13/PFE-sub001/internal/http"
	"github.com/Wafik13/PFE-sub001/internal/relay"
	"github.com/Wafik13/PFE-sub001/internal/sampler"
	"github.com/Wafik13/PFE-sub001/internal/service"
	"github.com/Wafik13/PFE-sub001/internal/tsdb"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	sink := tsdb.New(config.InfluxURL(), config.InfluxToken(), config.InfluxOrg(), config.InfluxBucket())
	defer sink.Close()

	latest := cache.New(config.RedisAddr())
	defer latest.Close()

	rly, err := relay.Connect(config.MQTTBroker(), "scada-server")
	if err != nil {
		log.Fatal().Err(err).Msg("relay connect failed")
	}
	defer rly.Disconnect()

	hub := ws.NewHub()
	svcs := service.New(db, rly)
	hub.SetCommandHandler(svcs.Commands)

	var notifier alarm.Notifier
	if config.UseCloudServices() && config.SNSTopicArn() != "" {
		n, err := cloud.NewSNSNotifier(config.AWSRegion(), config.SNSTopicArn())
		if err != nil {
			log.Error().Err(err).Msg("sns notifier unavailable, continuing without it")
		} else {
			notifier = n
		}
	}

	evaluator := alarm.NewEvaluator(svcs.Repos, hub, rly, notifier)

	// Relay-sourced critical alerts re-enter through the broadcaster; the
	// message is acked only after this handler returns nil.
	if err := rly.ConsumeCriticalAlerts(func(a *domain.Alarm) error {
		hub.BroadcastAll(ws.EventCriticalAlert, a)
		return nil
	}); err != nil {
		log.Fatal().Err(err).Msg("critical alerts subscription failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := sampler.New(svcs.Repos, sink, latest, hub, evaluator, config.SampleInterval())
	go s.Run(ctx)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", hub.ServeWS)
	go func() {
		log.Info().Str("addr", config.WSAddr()).Msg("websocket listening")
		log.Fatal().Err(http.ListenAndServe(config.WSAddr(), wsMux)).Msg("websocket server exit")
	}()

	app := fiber.New()
	httpHandlers.Register(app, &httpHandlers.Deps{
		Svcs:  svcs,
		TS:    sink,
		Cache: latest,
		Hub:   hub,
		Relay: rly,
	})

	log.Info().Str("addr", config.APIAddr()).Msg("api listening")
	log.Fatal().Err(app.Listen(config.APIAddr())).Msg("server exit")
}
