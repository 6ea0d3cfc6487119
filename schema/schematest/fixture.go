// Package schematest provides a shared blog model for tests.
package schematest

import "github.com/satishbabariya/contentql/schema"

// BlogModel is a small model covering every relation kind
const BlogModel = `
version: "1.0"
enums:
  locale: [cs, en]
entities:
  Author:
    fields:
      id: {type: uuid}
      name: {type: string}
      posts: {relation: oneHasMany, target: Post, ownedBy: author}
      profile: {relation: oneHasOne, target: Profile, ownedBy: author, nullable: true}
  Profile:
    fields:
      id: {type: uuid}
      bio: {type: string, nullable: true}
      author: {relation: oneHasOne, target: Author, inversedBy: profile, nullable: true}
  Post:
    unique: [[slug]]
    fields:
      id: {type: uuid}
      title: {type: string}
      slug: {type: string}
      publishedAt: {type: datetime, nullable: true}
      author: {relation: manyHasOne, target: Author, inversedBy: posts, nullable: true}
      locales: {relation: oneHasMany, target: PostLocale, ownedBy: post}
      categories: {relation: manyHasMany, target: Category, inversedBy: posts}
  PostLocale:
    table: post_locale
    unique: [[post, locale]]
    fields:
      id: {type: uuid}
      locale: {type: enum, enum: locale}
      title: {type: string, nullable: true}
      post: {relation: manyHasOne, target: Post, inversedBy: locales}
  Category:
    fields:
      id: {type: uuid}
      name: {type: string}
      posts: {relation: manyHasMany, target: Post, ownedBy: categories}
`

// Blog returns a freshly loaded BlogModel
func Blog() *schema.Schema {
	s, err := schema.LoadModel([]byte(BlogModel))
	if err != nil {
		panic(err)
	}
	return s
}
