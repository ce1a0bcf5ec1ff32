package utils

import (
  "os"
  "strconv"
  "github.com/askyenta/yenta-backend/internal/logger"
)

// GetEnv reads key from the environment, falling back to defaultVal when the
// variable is unset. The fallback is logged at debug so a misconfigured
// deploy stays visible without failing startup.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
  val, ok := os.LookupEnv(key)
  if !ok {
    envDebug(log, key, "Environment variable unset, using default", "default", defaultVal)
    return defaultVal
  }
  return val
}

// GetEnvAsInt is GetEnv for integer variables; unparseable values fall back
// to defaultVal.
func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
  raw, ok := os.LookupEnv(key)
  if !ok {
    envDebug(log, key, "Environment variable unset, using default", "default", defaultVal)
    return defaultVal
  }
  v, err := strconv.Atoi(raw)
  if err != nil {
    envDebug(log, key, "Environment variable is not an integer, using default", "value", raw, "default", defaultVal, "error", err)
    return defaultVal
  }
  return v
}

func envDebug(log *logger.Logger, key, msg string, kv ...interface{}) {
  if log == nil {
    return
  }
  log.With("env_var", key).Debug(msg, kv...)
}
