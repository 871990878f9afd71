package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境才開 pprof, 只綁 localhost
//
//	curl http://localhost:6060/debug/pprof/
//	go tool pprof http://localhost:6060/debug/pprof/goroutine
func StartPprof(addr string) {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}
	if addr == "" {
		addr = "127.0.0.1:6060"
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}
