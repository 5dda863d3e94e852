/*
Copyright 2025 Canonical Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/canonical/velero-operator/internal/charm"
	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/kube"
	"github.com/canonical/velero-operator/internal/notifications"
	"github.com/canonical/velero-operator/internal/velero"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	veleroBinary string
	namespace    string
	verbose      bool
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "velero-operator",
		Short:        "Juju charm managing Velero on Kubernetes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.veleroBinary, "velero-binary", velero.DefaultBinary, "Path to the velero CLI")
	root.PersistentFlags().StringVar(&opts.namespace, "namespace", "", "Namespace Velero runs in (defaults to the Juju model name)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log command traces")

	root.AddCommand(
		&cobra.Command{
			Use:   "dispatch",
			Short: "Handle the hook or action Juju dispatched",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return dispatch(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the velero-operator version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func dispatch(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zap.New(zap.UseDevMode(opts.verbose), zap.WriteTo(os.Stderr))
	ctrl.SetLogger(log)

	ev, err := hookenv.EventFromEnv(os.Getenv)
	if err != nil {
		log.Error(err, "Unable to determine the dispatched event")
		return err
	}
	log = log.WithValues("unit", ev.Unit)

	namespace := opts.namespace
	if namespace == "" {
		namespace = ev.ModelName
	}
	if namespace == "" {
		return fmt.Errorf("namespace is not set and JUJU_MODEL_NAME is empty")
	}

	scheme, err := kube.NewScheme(clientgoscheme.AddToScheme, velerov1api.AddToScheme, apiextensionsv1.AddToScheme)
	if err != nil {
		log.Error(err, "Unable to build the scheme")
		return err
	}
	cfg, err := ctrl.GetConfig()
	if err != nil {
		log.Error(err, "Unable to load the Kubernetes config")
		return err
	}
	k8sClient, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		log.Error(err, "Unable to create the Kubernetes client")
		return err
	}

	tools := hookenv.NewTools(hookenv.NewExecRunner(log.WithName("hookenv")), log.WithName("hookenv"))
	manager := velero.New(k8sClient, velero.NewExecutorWithBinary(opts.veleroBinary, log.WithName("velero")), namespace, log.WithName("velero"))
	notifier := notifications.NewManager(log.WithName("notifications"))

	return charm.New(tools, manager, k8sClient, notifier, log.WithName("charm")).Dispatch(ctx, ev)
}
