package megasd

type genre int

const (
	genreShooter genre = iota + 1
	genreAction
	genreSports
	genreMisc
	genreCasino
	genreDriving
	genrePlatform
	genrePuzzle
	genreBoxing
	genreWrestling
	genreStrategy
	genreSoccer
	genreGolf
	genreBeatEmUp
	genreBaseball
	genreMahjong
	genreBoard
	genreTennis
	genreFighter
	genreHorseRacing
	genreOther
)
