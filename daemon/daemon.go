// Package daemon wires the header index, sync manager, peer server and
// wallet together into a runnable node.
package daemon

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/samrock5000/nakamoto-cash/services/headerchain"
	"github.com/samrock5000/nakamoto-cash/services/netsync"
	"github.com/samrock5000/nakamoto-cash/services/p2p"
	"github.com/samrock5000/nakamoto-cash/services/wallet"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// Daemon owns the node's services.
type Daemon struct {
	logger   ulogger.Logger
	settings *settings.Settings

	index       *headerchain.Index
	syncManager *netsync.SyncManager
	banList     *p2p.BanList
	server      *p2p.Server
	wallet      *wallet.Wallet
}

// New builds the daemon from settings. Nothing is started.
func New(logger ulogger.Logger, tSettings *settings.Settings) (*Daemon, error) {
	var indexOpts []headerchain.Option
	if tSettings.Sync.MaxReorgDepth > 0 {
		indexOpts = append(indexOpts, headerchain.WithMaxReorgDepth(uint32(tSettings.Sync.MaxReorgDepth)))
	}

	index, err := headerchain.NewIndex(logger.New("hchain"), tSettings.ChainCfgParams, indexOpts...)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		logger:   logger,
		settings: tSettings,
		index:    index,
	}

	var sink netsync.ChainEventSink

	if tSettings.Wallet.Enabled {
		w, err := wallet.New(logger.New("wallet"), tSettings)
		if err != nil {
			return nil, err
		}

		d.wallet = w
		sink = w
	}

	d.syncManager = netsync.New(&netsync.Config{
		Logger:   logger.New("nsync"),
		Settings: tSettings,
		Index:    index,
		Sink:     sink,
	})

	d.banList = p2p.NewBanList(logger.New("ban"))

	server, err := p2p.NewServer(logger.New("p2p"), tSettings, index, d.syncManager, d.banList)
	if err != nil {
		return nil, err
	}

	d.server = server

	return d, nil
}

// Index returns the header index.
func (d *Daemon) Index() *headerchain.Index {
	return d.index
}

// SyncManager returns the sync coordinator.
func (d *Daemon) SyncManager() *netsync.SyncManager {
	return d.syncManager
}

// Wallet returns the wallet, or nil when disabled.
func (d *Daemon) Wallet() *wallet.Wallet {
	return d.wallet
}

// Start runs the node until the context is cancelled, then shuts the
// services down in reverse order.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Infof("[Daemon] starting %s on %s", d.settings.ClientName, d.settings.ChainCfgParams.Name)

	g, gCtx := errgroup.WithContext(ctx)

	d.syncManager.Start(gCtx)

	if err := d.server.Start(gCtx); err != nil {
		d.syncManager.Stop()
		d.banList.Stop()

		return err
	}

	var statsServer *http.Server

	if addr := d.settings.StatsListenAddress; addr != "" {
		http.Handle("/metrics", promhttp.Handler())

		statsServer = &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			d.logger.Infof("[Daemon] stats listening on http://%s/metrics", addr)

			if err := statsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()

		d.logger.Infof("[Daemon] shutting down")

		if statsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = statsServer.Shutdown(shutdownCtx)
		}

		_ = d.server.Stop()
		d.syncManager.Stop()
		d.banList.Stop()

		return nil
	})

	return g.Wait()
}
