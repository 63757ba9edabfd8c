package db

import (
	"context"
)

const refreshUserView = `
INSERT INTO user_view (
    "fid", "pfp", "display", "bio", "username", "url", "location",
    "twitter", "github", "banner", "ethereum_address", "solana_address"
)
SELECT
    ?1,
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'pfp' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'display' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'bio' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'username' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'url' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'location' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'twitter' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'github' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'banner' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'ethereum_address' ORDER BY timestamp DESC, hash LIMIT 1),
    (SELECT value FROM user_data WHERE fid = ?1 AND type = 'solana_address' ORDER BY timestamp DESC, hash LIMIT 1)
ON CONFLICT ("fid") DO UPDATE SET
    pfp = excluded.pfp,
    display = excluded.display,
    bio = excluded.bio,
    username = excluded.username,
    url = excluded.url,
    location = excluded.location,
    twitter = excluded.twitter,
    github = excluded.github,
    banner = excluded.banner,
    ethereum_address = excluded.ethereum_address,
    solana_address = excluded.solana_address
`

// RefreshUserView recomputes the user view row of fid from the user data
// entries seen so far, keeping the latest-timestamp value per type.
func (q *Queries) RefreshUserView(ctx context.Context, fid int64) error {
	_, err := q.db.ExecContext(ctx, refreshUserView, fid)
	return err
}

const getUserView = `
SELECT fid, pfp, display, bio, username, url, location, twitter, github, banner, ethereum_address, solana_address
FROM user_view WHERE fid = ?1
`

func (q *Queries) GetUserView(ctx context.Context, fid int64) (UserView, error) {
	row := q.db.QueryRowContext(ctx, getUserView, fid)
	var i UserView
	err := row.Scan(
		&i.Fid,
		&i.Pfp,
		&i.Display,
		&i.Bio,
		&i.Username,
		&i.Url,
		&i.Location,
		&i.Twitter,
		&i.Github,
		&i.Banner,
		&i.EthereumAddress,
		&i.SolanaAddress,
	)
	return i, err
}
