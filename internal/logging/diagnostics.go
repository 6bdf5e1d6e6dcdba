package logging

import "go.uber.org/zap"

// LogDiagnostic writes a single parse diagnostic as a structured record under
// the driver category. It is deliberately untyped on kind/key so callers in
// codec/builder/driver don't need to import this package's zap dependency
// beyond this one call site, and so logging never dictates the diagnostic
// taxonomy owned by the codec package.
func LogDiagnostic(path, kind, key string, pass int) {
	For(CategoryDriver).Info("parse diagnostic",
		zap.String("path", path),
		zap.String("kind", kind),
		zap.String("key", key),
		zap.Int("pass", pass),
	)
}
