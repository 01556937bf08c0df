package chat

const MaxSync = maxSync
