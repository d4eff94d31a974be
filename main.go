package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Asygurare/salespilot/agent/action"
	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/schedule"
	calendlyx "github.com/Asygurare/salespilot/pkg/calendly"
	configx "github.com/Asygurare/salespilot/pkg/config"
	connectionsx "github.com/Asygurare/salespilot/pkg/connections"
	gcalx "github.com/Asygurare/salespilot/pkg/gcal"
	gmailx "github.com/Asygurare/salespilot/pkg/gmail"
	"github.com/Asygurare/salespilot/pkg/httpapi"
	_ "github.com/Asygurare/salespilot/pkg/logger/autoload"
	savvycalx "github.com/Asygurare/salespilot/pkg/savvycal"
	storex "github.com/Asygurare/salespilot/pkg/store"
)

func main() {
	storeCfg := configx.MustLoad[storex.Config]("DB")
	db, err := storex.NewDB(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer db.Close()

	if storeCfg.InitSchema {
		if err := storex.InitSchema(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
	}

	records := storex.New(db)
	sends := schedule.NewRepository(db)
	resolver := connectionsx.NewResolver(db, *configx.MustLoad[connectionsx.Config]("OAUTH"))

	dispatcher := action.New(action.Deps{
		Store:       records,
		Profiles:    records,
		Credentials: resolver,
		Mail:        gmailx.MustNew(*configx.MustLoad[gmailx.Config]("GMAIL")),
		Calendar:    gcalx.MustNew(*configx.MustLoad[gcalx.Config]("GCAL")),
		Scheduling: []contract.SchedulingProvider{
			calendlyx.MustNew(*configx.MustLoad[calendlyx.Config]("CALENDLY")),
			savvycalx.MustNew(*configx.MustLoad[savvycalx.Config]("SAVVYCAL")),
		},
		Sends: sends,
	})

	auth := func(ctx context.Context, token string) (string, string, error) {
		user, err := records.UserByAPIToken(ctx, token)
		if err != nil {
			return "", "", err
		}
		return user.ID, user.Timezone, nil
	}

	server := httpapi.NewServer(*configx.MustLoad[httpapi.Config]("HTTP"), dispatcher, auth)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}
