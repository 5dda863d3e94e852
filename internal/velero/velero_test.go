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

package velero

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	"github.com/canonical/velero-operator/internal/kube"
)

const testNamespace = "velero-model"

var fastChecks = kube.CheckSettings{Attempts: 3, Delay: time.Millisecond, MinObservations: 1}

// fakeExecutor records every invocation and answers through respond.
type fakeExecutor struct {
	calls   [][]string
	respond func(args []string) ([]byte, []byte, error)
}

func (f *fakeExecutor) Run(_ context.Context, args []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, args)
	if f.respond == nil {
		return nil, nil, nil
	}
	return f.respond(args)
}

// failOn makes commands starting with prefix exit with code.
func failOn(t *testing.T, prefix string, code int) func([]string) ([]byte, []byte, error) {
	t.Helper()
	exitErr := exec.Command("sh", "-c", "exit "+strconv.Itoa(code)).Run()
	require.Error(t, exitErr)
	return func(args []string) ([]byte, []byte, error) {
		if strings.HasPrefix(strings.Join(args, " "), prefix) {
			return []byte("partial"), []byte("boom"), exitErr
		}
		return nil, nil, nil
	}
}

func newTestScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme, err := kube.NewScheme(clientgoscheme.AddToScheme, velerov1api.AddToScheme, apiextensionsv1.AddToScheme)
	require.NoError(t, err)
	return scheme
}

func newTestVelero(t *testing.T, executor *fakeExecutor, funcs *interceptor.Funcs, objs ...client.Object) (*Velero, client.Client) {
	t.Helper()
	builder := fake.NewClientBuilder().WithScheme(newTestScheme(t)).WithObjects(objs...)
	if funcs != nil {
		builder = builder.WithInterceptorFuncs(*funcs)
	}
	c := builder.Build()

	v := New(c, executor, testNamespace, getTestLogger())
	v.WorkloadChecks = fastChecks
	v.OperationChecks = fastChecks
	return v, c
}

func TestClusterRoleBindingName(t *testing.T) {
	assert.Equal(t, "velero", New(nil, nil, "velero", getTestLogger()).clusterRoleBindingName())
	assert.Equal(t, "velero-"+testNamespace, New(nil, nil, testNamespace, getTestLogger()).clusterRoleBindingName())
}

func TestIsInstalled(t *testing.T) {
	ctx := context.Background()
	meta := func(name string) metav1.ObjectMeta {
		return metav1.ObjectMeta{Name: name, Namespace: testNamespace}
	}
	core := []client.Object{
		&appsv1.Deployment{ObjectMeta: meta(DeploymentName)},
		&corev1.ServiceAccount{ObjectMeta: meta(ServiceAccountName)},
		&corev1.Service{ObjectMeta: meta(MetricsServiceName)},
		&rbacv1.ClusterRoleBinding{ObjectMeta: metav1.ObjectMeta{Name: "velero-" + testNamespace}},
	}

	v, _ := newTestVelero(t, &fakeExecutor{}, nil)
	installed, err := v.IsInstalled(ctx, false)
	require.NoError(t, err)
	assert.False(t, installed)

	v, c := newTestVelero(t, &fakeExecutor{}, nil, core...)
	installed, err = v.IsInstalled(ctx, false)
	require.NoError(t, err)
	assert.True(t, installed)

	installed, err = v.IsInstalled(ctx, true)
	require.NoError(t, err)
	assert.False(t, installed, "node agent is required when enabled")

	require.NoError(t, c.Create(ctx, &appsv1.DaemonSet{ObjectMeta: meta(NodeAgentName)}))
	installed, err = v.IsInstalled(ctx, true)
	require.NoError(t, err)
	assert.True(t, installed)
}
