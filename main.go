package main

import "github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/cmd"

func main() {
	cmd.Execute()
}
