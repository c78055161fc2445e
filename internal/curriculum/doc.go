// Package curriculum defines the level/item structure that setu compiles,
// loads it from JSON, YAML or TOML documents (or the embedded built-in
// course) and validates it before any external service is contacted.
package curriculum
