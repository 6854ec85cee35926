// Package poster publishes the current guild count to configured bot-list
// endpoints on an interval. Posting is entirely best-effort.
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trello-talk/tacows/internal/config"
	"github.com/trello-talk/tacows/internal/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const postTimeout = 10 * time.Second

type Params struct {
	fx.In

	Log    *zap.Logger
	Cfg    config.Config
	Client gateway.Client
}

type Poster struct {
	log      *zap.Logger
	client   gateway.Client
	targets  []config.BotListTarget
	interval time.Duration
	http     *http.Client
}

func New(p Params) *Poster {
	return &Poster{
		log:      p.Log.Named("poster"),
		client:   p.Client,
		targets:  p.Cfg.BotListTargets,
		interval: p.Cfg.PostInterval,
		http:     &http.Client{Timeout: postTimeout},
	}
}

func (p *Poster) Enabled() bool {
	return len(p.targets) > 0 && p.interval > 0
}

func (p *Poster) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PostOnce(ctx)
		}
	}
}

func (p *Poster) PostOnce(ctx context.Context) {
	snapshot := p.client.Snapshot()
	for _, target := range p.targets {
		if err := p.post(ctx, target, snapshot); err != nil {
			p.log.Warn("bot list post failed",
				zap.String("url", target.URL),
				zap.Error(err),
			)
			continue
		}
		p.log.Debug("bot list posted",
			zap.String("url", target.URL),
			zap.Int("guild_count", snapshot.Guilds),
		)
	}
}

func (p *Poster) post(ctx context.Context, target config.BotListTarget, snapshot gateway.Snapshot) error {
	body, err := json.Marshal(map[string]int{
		"server_count": snapshot.Guilds,
		"shard_count":  snapshot.Shards,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Token != "" {
		req.Header.Set("Authorization", target.Token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("bot list responded %d", resp.StatusCode)
	}
	return nil
}
