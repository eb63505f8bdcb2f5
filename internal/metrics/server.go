package metrics

import (
	"expvar"
	"net/http"
	"net/http/pprof"
)

// Handler 返回 debug mux：
// - expvar: /debug/vars
// - pprof:  /debug/pprof
// 由 API 路由挂载在 /debug 下，建议仅在内网暴露
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())

	// 显式注册，不依赖 DefaultServeMux
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
