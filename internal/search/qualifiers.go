package search

// fileQualifiers is the fixed list of 77 file-type qualifiers the provider
// cross-products against every detector's seed search queries: mostly
// extension:xxx filters for the languages and config formats credentials
// tend to leak from, plus a handful of filename:xxx filters for the exact
// filenames (e.g. .npmrc, wp-config.php) that carry them regardless of
// extension.
var fileQualifiers = buildFileQualifiers()

func buildFileQualifiers() []string {
	extensions := []string{
		"env", "py", "js", "ts", "jsx", "tsx", "json", "yaml", "yml", "toml",
		"ini", "cfg", "conf", "xml", "properties", "sh", "bash", "zsh", "ps1", "bat",
		"cmd", "rb", "php", "java", "go", "rs", "c", "cpp", "cs", "swift",
		"kt", "scala", "pl", "lua", "sql", "md", "txt", "log", "tf", "tfvars",
		"gradle", "groovy", "dockerfile", "makefile", "cnf", "config", "secrets", "credentials", "pem", "key",
		"crt", "p12", "pfx", "jks", "npmrc", "pypirc", "netrc", "htpasswd", "kube", "kubeconfig",
		"proto", "graphql", "vue", "svelte", "r", "dart", "ex", "exs", "clj", "hcl",
	}
	filenames := []string{
		"credentials", ".env", ".npmrc", ".netrc", "id_rsa", "secrets.yml", "wp-config.php",
	}
	out := make([]string, 0, len(extensions)+len(filenames))
	for _, ext := range extensions {
		out = append(out, "extension:"+ext)
	}
	for _, name := range filenames {
		out = append(out, "filename:"+name)
	}
	return out
}
