package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge/internal/render"
	"github.com/benedoc-inc/pdfmerge/internal/server"
	"github.com/benedoc-inc/pdfmerge/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the merge HTTP service",
	Long: `Run the merge HTTP service.

POST /api/v1/merge?key=<api key> accepts {"urls": [...]} or {"htmls": [...]}.
Every item is rendered with headless Chrome and the results are merged in
request order. The response is the merged PDF as an attachment.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	sc := cfg.Server
	if serveAddr != "" {
		sc.Addr = serveAddr
	}

	chrome := render.NewChrome(cfg.Chrome(), log)
	defer func() {
		if err := chrome.Close(); err != nil {
			log.Warn().Err(err).Msg("close browser")
		}
	}()

	srvCfg := server.Config{
		Addr:           sc.Addr,
		APIKey:         sc.APIKey,
		ReadTimeout:    time.Duration(sc.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(sc.WriteTimeout) * time.Second,
		RateLimit:      sc.RateLimit,
		Burst:          sc.Burst,
		MaxBodyBytes:   sc.MaxBodyBytes,
		Concurrency:    sc.RenderConcurrency,
		RenderDefaults: cfg.Render.Defaults,
		SaveOptions:    cfg.SaveOptions(),
		Renderer:       chrome,
		Logger:         log,
	}

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open artifact store: %w", err)
		}
		defer st.Close()

		janitor, err := store.NewJanitor(st, cfg.Store.PruneSchedule, cfg.Store.RetentionDuration(), log)
		if err != nil {
			return err
		}
		janitor.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = janitor.Stop(ctx)
		}()

		srvCfg.Store = st
		log.Info().Str("path", st.Path()).Msg("artifact store enabled")
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	cmd.Printf("Listening on %s\n", srv.Addr())

	<-cmd.Context().Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(sc.ShutdownTimeout)*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
