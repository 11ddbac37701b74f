/*
Package config manages configuration for the search service.

Config is assembled from three layers, lowest to highest precedence:
compiled-in defaults (DefaultConfig), an optional YAML file, and
environment variables prefixed SEARCH_ by default.

	cfg, err := config.NewLoader().
	    WithConfigPath("config.yaml").
	    WithEnvPrefix("SEARCH").
	    Load()

Upstream client credentials (UpstreamConfig) double as feature switches:
an absent gql_v2_token/gql_v3_token/webhook_url disables the corresponding
client rather than erroring, per spec.md §6. Config.HasGQLv2/HasGQLv3/
HasWebhook/HasBilling report these gates for the caller wiring the upstream
registry.
*/
package config
