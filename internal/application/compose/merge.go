package compose

import "strings"

// Merge applies override on top of base. Scalars set in the override replace
// the base value, list fields are concatenated without duplicates, and the
// environment is merged by key with the override winning.
func Merge(base, override Service) Service {
	out := base

	if override.Image != "" {
		out.Image = override.Image
	}
	if override.Command != nil {
		out.Command = override.Command
	}
	if override.Entrypoint != nil {
		out.Entrypoint = override.Entrypoint
	}
	if override.Restart != "" {
		out.Restart = override.Restart
	}
	if override.InternalPort != 0 {
		out.InternalPort = override.InternalPort
	}
	if override.IsMain {
		out.IsMain = true
	}
	if override.Healthcheck != nil {
		out.Healthcheck = override.Healthcheck
	}

	out.Environment = mergeEnvironment(base.Environment, override.Environment)
	out.Ports = appendUnique(base.Ports, override.Ports)
	out.Volumes = appendUnique(base.Volumes, override.Volumes)
	out.DependsOn = appendUnique(base.DependsOn, override.DependsOn)
	out.Labels = mergeLabels(base.Labels, override.Labels)

	return out
}

// MergeServices applies the overrides registered for arch to services.
// Services only present in the override are added as they are.
func MergeServices(services map[string]Service, overrides map[string]map[string]Service, arch string) map[string]Service {
	out := make(map[string]Service, len(services))
	for name, svc := range services {
		out[name] = svc
	}
	for name, ov := range overrides[arch] {
		if base, ok := out[name]; ok {
			out[name] = Merge(base, ov)
		} else {
			out[name] = ov
		}
	}
	return out
}

func envKey(entry string) string {
	key, _, _ := strings.Cut(entry, "=")
	return strings.TrimSpace(key)
}

func mergeEnvironment(base, override []string) []string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(override))
	index := make(map[string]int, len(base)+len(override))

	add := func(entry string) {
		key := envKey(entry)
		if i, ok := index[key]; ok {
			out[i] = entry
			return
		}
		index[key] = len(out)
		out = append(out, entry)
	}
	for _, e := range base {
		add(e)
	}
	for _, e := range override {
		add(e)
	}
	return out
}

func appendUnique(base, extra []string) []string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func mergeLabels(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
