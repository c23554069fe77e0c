/*
Copyright 2022 The OpenYurt Authors.

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
package kubeconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	DefaultPath   = "~/.k8sfs/kubernetes/admin.conf"
	DefaultServer = "https://127.0.0.1:8443"
)

// ErrNoClusters is returned when the document has no clusters sequence.
// The document is still written back.
var ErrNoClusters = errors.New("kubeconfig has no clusters")

// UpdateServer sets clusters[*].cluster.server of the kubeconfig document in
// data to server. It returns the re-encoded document and the number of
// clusters rewritten. Key order and every other field are kept.
func UpdateServer(data []byte, server string) ([]byte, int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("could not parse kubeconfig, %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, 0, fmt.Errorf("kubeconfig is not a yaml mapping")
	}
	root := doc.Content[0]

	var updated int
	var updateErr error
	clusters := lookup(root, "clusters")
	if clusters == nil || clusters.Kind != yaml.SequenceNode {
		updateErr = ErrNoClusters
	} else {
		for i, entry := range clusters.Content {
			cluster := lookup(entry, "cluster")
			if cluster == nil || cluster.Kind != yaml.MappingNode {
				klog.Warningf("clusters[%d] has no cluster mapping, skip it", i)
				continue
			}
			setScalar(cluster, "server", server)
			updated++
		}
	}

	blockStyle(&doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, 0, err
	}
	if err := enc.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), updated, updateErr
}

// UpdateServerFile rewrites the kubeconfig file at path in place with UpdateServer.
// The file mode is kept. ErrNoClusters is returned after the file was written.
func UpdateServerFile(path, server string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}

	out, updated, err := UpdateServer(data, server)
	if err != nil && !errors.Is(err, ErrNoClusters) {
		return 0, err
	}
	if werr := ioutil.WriteFile(path, out, info.Mode().Perm()); werr != nil {
		return 0, werr
	}
	klog.V(2).Infof("rewrote %d clusters of %s", updated, path)
	return updated, err
}

// lookup returns the value node of key in mapping node m
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setScalar(m *yaml.Node, key, value string) {
	if v := lookup(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Style = 0
		v.Content = nil
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

// blockStyle clears flow style on every node
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}
