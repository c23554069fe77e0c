package profile

import (
	"net/http"
	"net/http/pprof"
	"path"

	"k8s.io/klog/v2"

	"github.com/gorilla/mux"
)

// DefaultPrefix is where the pprof handlers are mounted
const DefaultPrefix = "/debug/pprof"

// named runtime profiles served through pprof.Handler
var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// Install adds the Profiling webservice under prefix to the given mux.
func Install(c *mux.Router, prefix string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	c.HandleFunc(path.Join(prefix, "profile"), func(rw http.ResponseWriter, req *http.Request) {
		klog.Infof("enter pprof profile: %v", req.URL.String())
		pprof.Profile(rw, req)
	}).Methods(http.MethodGet)
	c.HandleFunc(path.Join(prefix, "symbol"), pprof.Symbol).Methods(http.MethodGet, http.MethodPost)
	c.HandleFunc(path.Join(prefix, "trace"), pprof.Trace).Methods(http.MethodGet)
	c.HandleFunc(path.Join(prefix, "cmdline"), pprof.Cmdline).Methods(http.MethodGet)
	for _, name := range profiles {
		c.Handle(path.Join(prefix, name), pprof.Handler(name)).Methods(http.MethodGet)
	}
	c.HandleFunc(prefix, redirectTo(prefix+"/"))
	c.HandleFunc(prefix+"/", func(rw http.ResponseWriter, req *http.Request) {
		klog.V(2).Infof("enter pprof, %v", req.URL.String())
		pprof.Index(rw, req)
	}).Methods(http.MethodGet)
}

// redirectTo redirects request to a certain destination.
func redirectTo(to string) func(http.ResponseWriter, *http.Request) {
	return func(rw http.ResponseWriter, req *http.Request) {
		http.Redirect(rw, req, to, http.StatusFound)
	}
}
