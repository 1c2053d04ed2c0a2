package vocab

// DefaultSpec is the vocabulary of the stock detection model.
func DefaultSpec() Spec {
	return Spec{
		Labels: []string{
			// own units
			"MyBandit", "MyBarbarian", "MyBattleRam", "MyElectroSpirit",
			"MyMinion", "MyPekka", "MyRoyaleGhost", "MyGiant", "MyGolem",
			// enemy units
			"Bandit", "Barbarian", "BattleRam", "ElectroSpirit", "Minion",
			"Pekka", "RoyaleGhost", "Giant", "Golem", "Knight", "Musketeer",
			"HogRider", "Skeleton", "Goblin",
			// broken tower debris is tracked like a unit
			"MyPrincessTowerBrocken", "EnemyTowerBrocken",
			// hand
			"MyBanditDeck", "MyBarbarianDeck", "MyBattleRamDeck", "MyElectroSpiritDeck",
			"MyMinionDeck", "MyPekkaDeck", "MyRoyaleGhostDeck", "MyGiantDeck",
			"MyGolemDeck", "ArrowsDeck", "FireBallDeck", "RageDeck",
			"MyBanditNext", "MyBarbarianNext", "MyBattleRamNext", "MyElectroSpiritNext",
			"MyMinionNext", "MyPekkaNext", "MyRoyaleGhostNext", "MyGiantNext",
			"MyGolemNext", "ArrowsNext", "FireBallNext", "RageNext",
		},
		AllyTowers:  []string{"MyPrincessTower", "MyKingTower"},
		EnemyTowers: []string{"PrincessTower", "KingTower", "EnemyTower"},
		HPToTowers: map[string][]string{
			"MyPrincessTowerHP": {"MyPrincessTower"},
			"MyKingHP":          {"MyKingTower"},
			"KingTowerHP":       {"KingTower"},
			"TowerPrincessHP":   {"PrincessTower", "EnemyTower"},
		},
		AllyHP: []string{"MyPrincessTowerHP", "MyKingHP"},
		OwnUnits: []string{
			"MyBandit", "MyBarbarian", "MyBattleRam", "MyElectroSpirit",
			"MyMinion", "MyPekka", "MyRoyaleGhost", "MyGiant", "MyGolem",
			"MyPrincessTowerBrocken", "EnemyTowerBrocken",
		},
		Excluded:   []string{"Rage", "Empty", "Arrows", "FireBall", "Elixir"},
		DeckMarker: "Deck",
		NextMarker: "Next",
	}
}
