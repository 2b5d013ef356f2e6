// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Context Scoping: Cada request puede tener su propio logger "scoped" con campos
//     adicionales (request_id, user_id, session_id) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON, "test" descarta todo.
//   - Levels: debug, info, warn, error (configurable via LOG_LEVEL).
//   - Secretos: passwords, access y refresh tokens nunca se loguean. No hay
//     helper de campo para ellos a propósito.
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" o "prod"
//	    Level: cfg.Log.Level, // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// En services (con contexto):
//
//	log := logger.FromWithFields(ctx, logger.Layer("service"), logger.Component("authn"))
//	log.Info("login ok", logger.UserID(userID), logger.SessionID(sid))
//
// Sin contexto (fallback a singleton):
//
//	logger.L().Info("application started")
package logger
