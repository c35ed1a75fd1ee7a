package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/legacy"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/service"
	"github.com/and161185/neptus-sync/internal/syncer"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "neptus-sync",
		Short: "Offline-first reading store and sync client",
		Long: `neptus-sync keeps tank readings in a local store and synchronizes them
with the property-management API: pending readings are uploaded in one batch,
tanks and their readings are downloaded per property.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading NEPTUS_* variables")
	pf.String("base-url", "", "API base URL")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("session-dir", "", "directory holding the session token")
	pf.String("store-path", "", "sqlite file")
	for key, name := range map[string]string{
		"api.base_url": "base-url",
		"log.level":    "log-level",
		"session.dir":  "session-dir",
		"store.path":   "store-path",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(name))
	}

	root.AddCommand(
		versionCmd(),
		loginCmd(a),
		logoutCmd(a),
		recordCmd(a),
		listCmd(a),
		statusCmd(a),
		syncCmd(a),
		initialSyncCmd(a),
		propertiesCmd(a),
		watchCmd(a),
		importLegacyCmd(a),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neptus-sync %s (%s)\n", version, buildDate)
		},
	}
}

func loginCmd(a *app) *cobra.Command {
	var token, property string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the bearer token and the current property",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := a.session()
			if err != nil {
				return err
			}
			s, err := fs.Save(token, property)
			if err != nil {
				return err
			}
			out := map[string]any{"propertyId": s.PropertyID, "subject": s.Subject}
			if !s.ExpiresAt.IsZero() {
				out["expiresAt"] = s.ExpiresAt.Format(time.RFC3339)
			}
			a.printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the API")
	cmd.Flags().StringVar(&property, "property", "", "property id to sync")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("property")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Wipe local readings, tanks and properties and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fs, err := a.session()
			if err != nil {
				return err
			}
			return fs.Clear()
		},
	}
}

// propertyOr returns flagValue, falling back to the session's property.
func (a *app) propertyOr(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	s, err := a.credentials()
	if err != nil {
		return "", err
	}
	if s.PropertyID == "" {
		return "", fmt.Errorf("no property: pass --property or login first")
	}
	return s.PropertyID, nil
}

func recordCmd(a *app) *cobra.Command {
	var (
		in                          model.NewReading
		temperature, ph, oxy, ammon float64
		image                       string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a reading locally as pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, err := a.propertyOr(in.PropertyID)
			if err != nil {
				return err
			}
			in.PropertyID = pid
			f := cmd.Flags()
			if f.Changed("temperature") {
				in.Temperature = &temperature
			}
			if f.Changed("ph") {
				in.PH = &ph
			}
			if f.Changed("oxygen") {
				in.Oxygen = &oxy
			}
			if f.Changed("ammonia") {
				in.Ammonia = &ammon
			}
			if f.Changed("image") {
				in.ColorImage = &image
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := service.NewReadingService(st.Readings()).Record(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.printJSON(map[string]string{"id": id})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.PropertyID, "property", "", "property id (default: session property)")
	f.StringVar(&in.TankID, "tank", "", "tank id")
	f.Float64Var(&in.Turbidity, "turbidity", 0, "turbidity")
	f.Float64Var(&temperature, "temperature", 0, "water temperature")
	f.Float64Var(&ph, "ph", 0, "pH")
	f.Float64Var(&oxy, "oxygen", 0, "dissolved oxygen")
	f.Float64Var(&ammon, "ammonia", 0, "ammonia")
	f.StringVar(&image, "image", "", "color image reference")
	_ = cmd.MarkFlagRequired("tank")
	_ = cmd.MarkFlagRequired("turbidity")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var property, tank string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local readings of a tank or a property, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			svc := service.NewReadingService(st.Readings())
			var rs []model.Reading
			if tank != "" {
				rs, err = svc.ListByTank(cmd.Context(), tank)
			} else {
				var pid string
				if pid, err = a.propertyOr(property); err != nil {
					return err
				}
				rs, err = svc.ListByProperty(cmd.Context(), pid)
			}
			if err != nil {
				return err
			}
			if rs == nil {
				rs = []model.Reading{}
			}
			a.printJSON(rs)
			return nil
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "property id (default: session property)")
	cmd.Flags().StringVar(&tank, "tank", "", "tank id")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending count and initial sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			s, err := m.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := struct {
				model.SyncStatus
				PropertyID       string `json:"propertyId,omitempty"`
				NeedsInitialSync *bool  `json:"needsInitialSync,omitempty"`
			}{SyncStatus: s}

			sess, err := a.credentials()
			if err != nil {
				return err
			}
			if sess.PropertyID != "" {
				need, err := m.NeedsInitialSync(cmd.Context(), sess.PropertyID)
				if err != nil {
					return err
				}
				out.PropertyID = sess.PropertyID
				out.NeedsInitialSync = &need
			}
			a.printJSON(out)
			return nil
		},
	}
}

func syncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending readings in one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			res, err := m.Sync(cmd.Context())
			a.printJSON(res)
			return err
		},
	}
}

func initialSyncCmd(a *app) *cobra.Command {
	var withProperties bool
	cmd := &cobra.Command{
		Use:   "initial-sync",
		Short: "Replace the property's tanks and readings with the server copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			if withProperties {
				if _, err := m.SyncProperties(cmd.Context()); err != nil {
					return err
				}
			}
			res, err := m.InitialSync(cmd.Context())
			a.printJSON(res)
			return err
		},
	}
	cmd.Flags().BoolVar(&withProperties, "properties", false, "refresh the property cache first")
	return cmd
}

func propertiesCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Refresh and list cached properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			if !offline {
				if _, err := m.SyncProperties(cmd.Context()); err != nil {
					return err
				}
			}
			ps, err := a.store.Properties().GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if ps == nil {
				ps = []model.Property{}
			}
			a.printJSON(ps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "list the cache without contacting the server")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload pending readings now and then periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.syncManager(cmd.Context())
			if err != nil {
				return err
			}
			c, _ := a.config()
			if interval <= 0 {
				interval = c.Sync.Interval
			}
			unsubscribe := m.Subscribe(func(s model.SyncStatus) {
				if !s.IsSyncing {
					a.printJSON(s)
				}
			})
			defer unsubscribe()

			a.log.Info("auto-sync started", zap.Duration("interval", interval))
			return syncer.NewRunner(m, interval, a.log.Named("runner")).Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "sync period (default: sync.interval)")
	return cmd
}

func importLegacyCmd(a *app) *cobra.Command {
	var property, dir string
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Import readings saved by the previous client as pending readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if dir == "" {
				c, _ := a.config()
				dir = c.Session.Dir
			}
			im := legacy.NewImporter(st, dir, a.log.Named("legacy"))

			var res legacy.Result
			if property != "" {
				res, err = im.Import(cmd.Context(), property)
			} else {
				res, err = im.ImportAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			a.printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "import a single property (default: every blob found)")
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding offlineReadings_* files (default: session dir)")
	return cmd
}
