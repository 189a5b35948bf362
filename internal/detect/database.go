package detect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// envMarker identifies a database engine from an env file entry, either by
// a key prefix or by a connection-string scheme found in a value.
type envMarker struct {
	kind     DataTech
	prefixes []string
	schemes  []string
}

// envMarkers is checked in order; the first engine with a matching entry wins.
var envMarkers = []envMarker{
	{kind: MySQL, prefixes: []string{"MYSQL_"}, schemes: []string{"mysql://"}},
	{kind: Postgres, prefixes: []string{"POSTGRES_"}, schemes: []string{"postgres://", "postgresql://"}},
	{kind: MongoDB, prefixes: []string{"MONGO_"}, schemes: []string{"mongodb://", "mongodb+srv://"}},
	{kind: Redis, prefixes: []string{"REDIS_"}, schemes: []string{"redis://"}},
	{kind: SQLite, prefixes: []string{"SQLITE_"}, schemes: []string{"sqlite:"}},
}

// clientLibrary maps a dependency name to the engine it talks to.
type clientLibrary struct {
	name string
	kind DataTech
}

// nodeClientLibraries is the priority table for package.json dependencies.
var nodeClientLibraries = []clientLibrary{
	{"mysql2", MySQL},
	{"mysql", MySQL},
	{"pg", Postgres},
	{"postgres", Postgres},
	{"mongoose", MongoDB},
	{"mongodb", MongoDB},
	{"redis", Redis},
	{"ioredis", Redis},
	{"sqlite3", SQLite},
	{"better-sqlite3", SQLite},
}

// pythonClientLibraries is the priority table for requirements.txt entries.
var pythonClientLibraries = []clientLibrary{
	{"mysql-connector-python", MySQL},
	{"pymysql", MySQL},
	{"mysqlclient", MySQL},
	{"flask-mysqldb", MySQL},
	{"psycopg2", Postgres},
	{"psycopg2-binary", Postgres},
	{"psycopg", Postgres},
	{"pymongo", MongoDB},
	{"flask-pymongo", MongoDB},
	{"mongoengine", MongoDB},
	{"redis", Redis},
}

// Database classifies the data tier engine. Env markers in the data tier win
// over client libraries declared by the service tier.
func Database(dataDir, serviceDir string, tech ServiceTech) (DataTech, error) {
	kind, err := databaseFromEnv(dataDir)
	if err != nil || kind != DataUnknown {
		return kind, err
	}
	return databaseFromDependencies(serviceDir, tech)
}

func databaseFromEnv(dir string) (DataTech, error) {
	path := filepath.Join(dir, envFile)
	text, ok, err := readTextOptional(path)
	if err != nil || !ok {
		return DataUnknown, err
	}
	env, err := godotenv.Unmarshal(text)
	if err != nil {
		return DataUnknown, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, marker := range envMarkers {
		if envHasMarker(env, marker) {
			return marker.kind, nil
		}
	}
	return DataUnknown, nil
}

func envHasMarker(env map[string]string, marker envMarker) bool {
	for key, value := range env {
		upper := strings.ToUpper(key)
		for _, prefix := range marker.prefixes {
			if strings.HasPrefix(upper, prefix) {
				return true
			}
		}
		lower := strings.ToLower(value)
		for _, scheme := range marker.schemes {
			if strings.Contains(lower, scheme) {
				return true
			}
		}
	}
	return false
}

func databaseFromDependencies(dir string, tech ServiceTech) (DataTech, error) {
	switch tech {
	case Node:
		pkg, err := readManifest(dir)
		if err != nil || pkg == nil {
			return DataUnknown, err
		}
		for _, lib := range nodeClientLibraries {
			if pkg.has(lib.name) {
				return lib.kind, nil
			}
		}
	case PythonFlask:
		text, ok, err := readTextOptional(filepath.Join(dir, requirementsList))
		if err != nil || !ok {
			return DataUnknown, err
		}
		declared := make(map[string]bool)
		for _, name := range requirementNames(text) {
			declared[name] = true
		}
		for _, lib := range pythonClientLibraries {
			if declared[lib.name] {
				return lib.kind, nil
			}
		}
	case ServiceUnknown:
	}
	return DataUnknown, nil
}
