// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/streamnative/talus/admin"
	"github.com/streamnative/talus/bundle"
	"github.com/streamnative/talus/common/metrics"
	"github.com/streamnative/talus/metadata"
)

// Config is the resolver process configuration, loaded from flags and the
// optional YAML config file.
type Config struct {
	AdvertisedAddress string `mapstructure:"advertisedAddress"`
	StoreImpl         string `mapstructure:"storeImpl"`
	LocalStorePath    string `mapstructure:"localStorePath"`
	GlobalStorePath   string `mapstructure:"globalStorePath"`
	MetricsAddr       string `mapstructure:"metricsAddr"`
}

const (
	storeImplMemory = "memory"
	storeImplFile   = "file"
)

var (
	conf       Config
	configFile string

	Cmd = &cobra.Command{
		Use:     "resolver",
		Short:   "Start the control-plane resolver",
		Long:    `Start the control-plane resolver over a local and a global configuration store`,
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	Cmd.Flags().StringVarP(&conf.AdvertisedAddress, "advertised-address", "a", "localhost:8080", "Advertised broker address (host:port)")
	Cmd.Flags().StringVar(&conf.StoreImpl, "store", storeImplMemory, "Store implementation: memory or file")
	Cmd.Flags().StringVar(&conf.LocalStorePath, "local-store-path", "data/local", "Root directory of the local-tier store with store=file")
	Cmd.Flags().StringVar(&conf.GlobalStorePath, "global-store-path", "data/global", "Root directory of the global-tier store with store=file")
	Cmd.Flags().StringVarP(&conf.MetricsAddr, "metrics-addr", "m", "0.0.0.0:8001", "Bind address of the metrics endpoint")
	Cmd.Flags().StringVarP(&configFile, "conf", "f", "", "Resolver config file")
}

func validate(*cobra.Command, []string) error {
	if configFile != "" {
		if err := loadConfig(viper.New()); err != nil {
			return err
		}
	}
	if conf.StoreImpl != storeImplMemory && conf.StoreImpl != storeImplFile {
		return errors.Errorf("unknown store implementation: %s", conf.StoreImpl)
	}
	return nil
}

func loadConfig(v *viper.Viper) error {
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Warn(
			"Config file changed on disk, restart to apply",
			slog.String("file", e.Name),
		)
	})
	v.WatchConfig()

	return v.Unmarshal(&conf, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	})
}

func newStore(path string) (metadata.Store, error) {
	if conf.StoreImpl == storeImplFile {
		return metadata.NewFileStore(path)
	}
	return metadata.NewMemoryStore(), nil
}

func exec(*cobra.Command, []string) error {
	self, err := admin.ParseBrokerAddress(conf.AdvertisedAddress)
	if err != nil {
		return err
	}

	localStore, err := newStore(conf.LocalStorePath)
	if err != nil {
		return err
	}
	globalStore, err := newStore(conf.GlobalStorePath)
	if err != nil {
		return err
	}

	service, err := admin.NewService(self, localStore, globalStore,
		admin.AllowAll{}, bundle.NewHashRingFactory())
	if err != nil {
		return err
	}

	prometheusMetrics, err := metrics.Start(conf.MetricsAddr)
	if err != nil {
		return err
	}

	slog.Info(
		"Resolver started",
		slog.String("advertised-address", self.String()),
		slog.String("store", conf.StoreImpl),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("Shutting down")
	return multierr.Combine(
		service.Close(),
		localStore.Close(),
		globalStore.Close(),
		prometheusMetrics.Close(),
	)
}
