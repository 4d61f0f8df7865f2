package config

import (
	"os"
	"path/filepath"
)

const (
	storageBackendEnvVar    = "STORAGE_BACKEND"
	storageDirEnvVar        = "STORAGE_DIR"
	storagePassphraseEnvVar = "STORAGE_PASSPHRASE"
	redisAddrEnvVar         = "REDIS_ADDR"

	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetStorageDir() string
	GetStoragePassphrase() string
	GetRedisAddr() string
}

type Storage struct {
	backend    string
	dir        string
	passphrase string
	redisAddr  string
}

var _ StorageConfig = Storage{}

func loadStorage() Storage {
	return Storage{
		backend:    GetEnv(storageBackendEnvVar, BackendFile),
		dir:        GetEnv(storageDirEnvVar, defaultStorageDir()),
		passphrase: GetEnv(storagePassphraseEnvVar, ""),
		redisAddr:  GetEnv(redisAddrEnvVar, "localhost:6379"),
	}
}

func defaultStorageDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".go-auth-client")
		}
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "go-auth-client")
}

func (s Storage) GetStorageBackend() string {
	return s.backend
}

func (s Storage) GetStorageDir() string {
	return s.dir
}

// GetStoragePassphrase returns the secret the at-rest encryption key is derived from.
func (s Storage) GetStoragePassphrase() string {
	return s.passphrase
}

func (s Storage) GetRedisAddr() string {
	return s.redisAddr
}
