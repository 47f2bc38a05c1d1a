// Command policy-gate runs the runtime policy decision service.
package main

import "github.com/sentinelpolicy/policygate/cmd/policy-gate/cmd"

func main() {
	cmd.Execute()
}
