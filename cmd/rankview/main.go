// Command rankview serves, renders and browses MyAnimeList ranking snapshots.
//
// Usage:
//
//	rankview serve [-c config.yaml]
//	rankview table --snapshot 2 --cutoff 1500 [--format text|html|json]
//	rankview browse
package main

import "github.com/Adithya-Monish-Kumar-K/rankview/internal/cli"

func main() {
	cli.Execute()
}
