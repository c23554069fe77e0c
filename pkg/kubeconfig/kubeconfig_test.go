package kubeconfig

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

const twoClusters = `apiVersion: v1
kind: Config
clusters:
- name: kubernetes
  cluster:
    certificate-authority-data: Y2VydA==
    server: https://10.0.0.1:6443
- name: edge
  cluster:
    insecure-skip-tls-verify: true
    server: https://10.0.0.2:6443
contexts:
- name: kubernetes-admin@kubernetes
  context:
    cluster: kubernetes
    user: kubernetes-admin
current-context: kubernetes-admin@kubernetes
users:
- name: kubernetes-admin
  user:
    token: abc
`

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &m))
	return m
}

func TestUpdateServerRewritesEveryCluster(t *testing.T) {
	out, updated, err := UpdateServer([]byte(twoClusters), DefaultServer)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	want := decode(t, []byte(twoClusters))
	for _, c := range want["clusters"].([]interface{}) {
		c.(map[string]interface{})["cluster"].(map[string]interface{})["server"] = DefaultServer
	}
	assert.Equal(t, want, decode(t, out))

	// key order is kept
	assert.True(t, strings.Index(string(out), "clusters:") < strings.Index(string(out), "contexts:"))
	assert.True(t, strings.HasPrefix(string(out), "apiVersion: v1\n"))
}

func TestUpdateServerBlockStyle(t *testing.T) {
	in := `{clusters: [{name: a, cluster: {server: "http://old"}}], users: []}`
	out, updated, err := UpdateServer([]byte(in), "https://new:8443")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.NotContains(t, string(out), "{")
	assert.Contains(t, string(out), "server: https://new:8443")
}

func TestUpdateServerAddsMissingServer(t *testing.T) {
	in := "clusters:\n- name: a\n  cluster:\n    insecure-skip-tls-verify: true\n- name: b\n"
	out, updated, err := UpdateServer([]byte(in), DefaultServer)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	m := decode(t, out)
	clusters := m["clusters"].([]interface{})
	require.Len(t, clusters, 2)
	assert.Equal(t, DefaultServer, clusters[0].(map[string]interface{})["cluster"].(map[string]interface{})["server"])
	assert.NotContains(t, clusters[1].(map[string]interface{}), "cluster")
}

func TestUpdateServerNoClusters(t *testing.T) {
	out, updated, err := UpdateServer([]byte("apiVersion: v1\nkind: Config\n"), DefaultServer)
	assert.ErrorIs(t, err, ErrNoClusters)
	assert.Equal(t, 0, updated)
	assert.Equal(t, "apiVersion: v1\nkind: Config\n", string(out))
}

func TestUpdateServerInvalid(t *testing.T) {
	for name, in := range map[string]string{
		"empty":    "",
		"scalar":   "hello",
		"sequence": "- a\n- b\n",
		"broken":   "clusters: [a, b\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := UpdateServer([]byte(in), DefaultServer)
			assert.Error(t, err)
		})
	}
}

func TestUpdateServerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.conf")
	require.NoError(t, ioutil.WriteFile(path, []byte(twoClusters), 0600))

	updated, err := UpdateServerFile(path, "https://127.0.0.1:9443")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	servers, err := Servers(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://127.0.0.1:9443", "https://127.0.0.1:9443"}, servers)
}

func TestUpdateServerFileMissing(t *testing.T) {
	_, err := UpdateServerFile(filepath.Join(t.TempDir(), "missing.conf"), DefaultServer)
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateServerFileNoClusters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.conf")
	require.NoError(t, ioutil.WriteFile(path, []byte("kind: Config\n"), 0644))

	_, err := UpdateServerFile(path, DefaultServer)
	assert.ErrorIs(t, err, ErrNoClusters)
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kind: Config\n", string(data))
}
