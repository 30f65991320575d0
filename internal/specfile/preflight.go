package specfile

// isolationConflicts lists command tokens known to manage stateful local
// infrastructure bound to fixed network ports. Running them from an
// isolated worktree would collide with instances serving the main
// checkout, so the driver downgrades to non-isolated execution when any
// appear in the plan.
var isolationConflicts = map[string]bool{
	"docker":         true,
	"docker-compose": true,
	"supabase":       true,
}

// IsolationConflicts scans every verify and gate command in the plan and
// returns the distinct conflicting tokens found, in first-seen order.
// Detection is by literal token match on the executable name and its
// first argument (covers "docker compose up" style subcommand forms).
func IsolationConflicts(spec *Spec) []string {
	var found []string
	seen := make(map[string]bool)

	note := func(tok string) {
		if isolationConflicts[tok] && !seen[tok] {
			seen[tok] = true
			found = append(found, tok)
		}
	}

	scan := func(cmds []VerifyCmd) {
		for _, cmd := range cmds {
			note(cmd.Name)
			if len(cmd.Args) > 0 {
				note(cmd.Args[0])
			}
		}
	}

	for _, phase := range spec.Phases {
		for _, step := range phase.Steps {
			scan(step.Verify)
		}
		scan(phase.Gate)
	}
	return found
}
