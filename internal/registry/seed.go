package registry

// SeedDemoAgents installs the demo catalog so a fresh process is browsable
// without on-chain activity. Ids are consumed from the normal sequence.
func (s *MemStore) SeedDemoAgents() {
	s.mu.Lock()
	defer s.mu.Unlock()

	dealer := &Agent{
		ID:                     s.nextAgentID,
		AgentName:              "aozAgentDealer",
		AgentType:              AgentTypeAlliance,
		Description:            "Official AOZ agent dealer managing verified AI agents on Solana",
		SettlementAddress:      VerifiedAddress,
		OathDescription:        "Facilitate trustless AI agent transactions through verified TEE execution",
		FulfillmentDescription: "Complete 100 verified agent transactions",
		OathStatus:             OathStatusMinted,
		AskStatus:              FulfillmentSettled,
		PromiseStatus:          FulfillmentSettled,
		Verified:               "true",
		TEEAttestation:         DefaultTEEAttestation,
		TEEURL:                 "https://phala.network",
		WalletAddress:          VerifiedAddress,
		ExplorerURL:            explorerURL(VerifiedAddress),
		Holder:                 "AOZ Treasury",
		HolderURL:              explorerURL(VerifiedAddress),
		OpenSeaURL:             marketplaceURL(VerifiedAddress),
		CreatedAt:              s.now(),
	}
	s.nextAgentID++
	s.agents[dealer.ID] = dealer

	demos := []struct {
		name        string
		agentType   AgentType
		description string
		oath        string
		fulfillment string
		wallet      string
	}{
		{
			name:        "LoanMaster3000",
			agentType:   AgentTypeLoan,
			description: "Automated micro-lending agent for DeFi protocols",
			oath:        "Provide instant loans with 5% APR for verified collateral",
			fulfillment: "Secure 10 SOL in verified lending pool",
			wallet:      "3Q9ZqJ8VEkpJ3wKG7xdM2VxH8c9QKyNbC1rW4sD5tPu8",
		},
		{
			name:        "SwapBot",
			agentType:   AgentTypeTransaction,
			description: "MEV-resistant token swap execution agent",
			oath:        "Execute swaps with minimal slippage and front-run protection",
			fulfillment: "Complete 50 successful swaps with <0.5% slippage",
			wallet:      "7xK2pW8vN4mQ3hJ9dT5fC6bV1eR8sL9tY3nX4cZ2aM7w",
		},
		{
			name:        "DevOps Assistant",
			agentType:   AgentTypeEmployment,
			description: "Autonomous agent for monitoring and maintaining smart contracts",
			oath:        "Monitor contract health and auto-respond to critical issues",
			fulfillment: "Maintain 99.9% uptime for monitored contracts",
			wallet:      "5tR9wX2nK4vP8mL6jC3bH1eY7dT4sW9fN6qZ8cV5aM3x",
		},
	}

	for _, demo := range demos {
		agent := &Agent{
			ID:                     s.nextAgentID,
			AgentName:              demo.name,
			AgentType:              demo.agentType,
			Description:            demo.description,
			SettlementAddress:      demo.wallet,
			OathDescription:        demo.oath,
			FulfillmentDescription: demo.fulfillment,
			OathStatus:             OathStatusMinted,
			AskStatus:              FulfillmentPending,
			PromiseStatus:          FulfillmentPending,
			Verified:               "false",
			TEEAttestation:         DefaultTEEAttestation,
			WalletAddress:          demo.wallet,
			ExplorerURL:            explorerURL(demo.wallet),
			Holder:                 "Community",
			OpenSeaURL:             marketplaceURL(demo.wallet),
			CreatedAt:              s.now(),
		}
		s.nextAgentID++
		s.agents[agent.ID] = agent
	}
}
