// Package config loads sitepress.yaml.
//
// Loading runs in four passes, in order: .env files are read into the
// process environment (existing variables win), the YAML is expanded with
// ${VAR} references and decoded strictly, enumerations are normalized, and
// finally defaults are applied and the result validated.
package config
